package negotiation

import "sync"

// taskQueue is an unbounded FIFO of negotiation steps. Push never blocks,
// so the channel read loop and pion callbacks are never held up by a slow
// transition.
type taskQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool
	tasks    []func()
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends task and reports false once the queue is closed.
func (q *taskQueue) Push(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)
	q.notEmpty.Signal()
	return true
}

// Pop blocks until a task is available or the queue is closed.
func (q *taskQueue) Pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, true
}

// Close discards queued tasks and wakes the consumer.
func (q *taskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
