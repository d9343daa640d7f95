package negotiation

import "sync"

// slot holds at most one subscriber; Set replaces the previous one.
type slot[T any] struct {
	mu sync.RWMutex
	fn func(T)
}

func (s *slot[T]) Set(fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
}

func (s *slot[T]) emit(v T) {
	s.mu.RLock()
	fn := s.fn
	s.mu.RUnlock()
	if fn != nil {
		fn(v)
	}
}
