// Package negotiation drives one peer connection through offer/answer and
// trickle ICE in response to relay envelopes.
//
// Every negotiation-affecting event (inbound envelopes, gathered candidates,
// connectivity reports, remote streams) becomes a task on one FIFO drained by
// one goroutine. A task runs to completion before the next one starts, so a
// candidate can never reach the connection while a description is being
// applied, and envelopes are applied in receipt order.
package negotiation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/signaling"
)

// maxPendingCandidates bounds the buffer of candidates that arrived before a
// remote description; the oldest are dropped first.
const maxPendingCandidates = 64

// Sender delivers outbound envelopes. core.SignalChannel satisfies it.
type Sender interface {
	Send(signaling.Envelope)
}

type Machine struct {
	sid     core.SessionID
	factory core.MediaConnectionFactory
	queue   *taskQueue
	done    chan struct{}

	startMu   sync.Mutex
	started   bool
	closed    bool
	closeOnce sync.Once

	state atomic.Int32
	role  atomic.Int32

	// Owned by the worker goroutine.
	sender         Sender
	tracks         []core.LocalTrack
	conn           core.MediaConnection
	gen            uint64
	remoteApplied  bool
	awaitingAnswer bool
	pending        []webrtc.ICECandidateInit

	remoteStream slot[*core.RemoteStream]
	peerDeparted slot[domain.PeerID]
	stateChange  slot[State]
}

func New(sid core.SessionID, factory core.MediaConnectionFactory) *Machine {
	return &Machine{
		sid:     sid,
		factory: factory,
		queue:   newTaskQueue(),
		done:    make(chan struct{}),
	}
}

// Start begins applying queued events. Envelopes handled before Start wait
// in the queue. tracks are attached to every connection the machine creates.
func (m *Machine) Start(sender Sender, tracks []core.LocalTrack) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true
	m.sender = sender
	m.tracks = tracks
	go m.run()
}

func (m *Machine) State() State { return State(m.state.Load()) }
func (m *Machine) Role() Role   { return Role(m.role.Load()) }

// OnRemoteStream replaces the remote stream subscriber.
func (m *Machine) OnRemoteStream(fn func(*core.RemoteStream)) { m.remoteStream.Set(fn) }

// OnPeerDeparted replaces the departure subscriber.
func (m *Machine) OnPeerDeparted(fn func(domain.PeerID)) { m.peerDeparted.Set(fn) }

// OnStateChange replaces the state subscriber.
func (m *Machine) OnStateChange(fn func(State)) { m.stateChange.Set(fn) }

// Handle queues an inbound envelope. It never blocks.
func (m *Machine) Handle(env signaling.Envelope) {
	if !m.queue.Push(func() { m.apply(env) }) {
		log.Debug().Str("module", "negotiation").Str("sid", string(m.sid)).Str("kind", string(env.Kind)).Msg("envelope after close dropped")
	}
}

// Flush waits until every event queued before the call has been applied.
func (m *Machine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !m.queue.Push(func() { close(done) }) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the active connection and stops the worker. StateClosed
// is the last event the worker emits; a machine that never started emits it
// from Close. Subscribers run on the worker goroutine and must not call Close.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		m.startMu.Lock()
		started := m.started
		m.closed = true
		m.startMu.Unlock()

		m.markClosed()
		m.queue.Close()
		if started {
			<-m.done
		} else {
			m.runTask(m.finish)
		}
		log.Info().Str("module", "negotiation").Str("sid", string(m.sid)).Msg("closed")
	})
}

func (m *Machine) run() {
	defer close(m.done)
	for {
		task, ok := m.queue.Pop()
		if !ok {
			break
		}
		m.runTask(task)
	}
	m.runTask(m.finish)
}

func (m *Machine) finish() {
	m.teardown()
	m.stateChange.emit(StateClosed)
}

func (m *Machine) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "negotiation").Str("sid", string(m.sid)).Interface("panic", r).Msg("negotiation step panicked")
		}
	}()
	task()
}

func (m *Machine) enqueue(task func()) {
	m.queue.Push(task)
}

func (m *Machine) apply(env signaling.Envelope) {
	if m.State() == StateClosed {
		return
	}
	switch env.Kind {
	case signaling.KindPeerArrived:
		m.onPeerArrived(env)
	case signaling.KindOffer:
		m.onOffer(env)
	case signaling.KindAnswer:
		m.onAnswer(env)
	case signaling.KindCandidate:
		m.onCandidate(env)
	case signaling.KindPeerDeparted:
		m.onPeerDeparted(env)
	default:
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Str("kind", string(env.Kind)).Msg("unexpected envelope dropped")
	}
}

func (m *Machine) onPeerArrived(env signaling.Envelope) {
	if st := m.State(); st != StateIdle {
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Str("peer", string(env.PeerID)).Str("state", st.String()).Msg("peer arrived while busy, ignored")
		return
	}
	log.Info().Str("module", "negotiation").Str("sid", string(m.sid)).Str("peer", string(env.PeerID)).Msg("peer arrived, initiating")

	conn, err := m.ensureConn()
	if err != nil {
		log.Error().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Msg("new media connection")
		return
	}
	m.setRole(RoleInitiator)

	offer, err := conn.CreateOffer()
	if err != nil {
		m.abandon("create offer", err)
		return
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		m.abandon("set local offer", err)
		return
	}
	m.awaitingAnswer = true
	m.send(signaling.Offer(offer.SDP))
	m.transition(StateInitiating)
}

func (m *Machine) onOffer(env signaling.Envelope) {
	if env.Description == nil {
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Msg("offer without description dropped")
		return
	}
	fresh := m.conn == nil
	conn, err := m.ensureConn()
	if err != nil {
		log.Error().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Msg("new media connection")
		return
	}
	if m.Role() == RoleUnassigned {
		m.setRole(RoleResponder)
	}

	if err := conn.SetRemoteDescription(*env.Description); err != nil {
		m.answerFailed("apply remote offer", err, fresh)
		return
	}
	m.remoteApplied = true
	m.flushPending(conn)

	answer, err := conn.CreateAnswer()
	if err != nil {
		m.answerFailed("create answer", err, fresh)
		return
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		m.answerFailed("set local answer", err, fresh)
		return
	}
	m.awaitingAnswer = false
	m.send(signaling.Answer(answer.SDP))
	m.transition(StateAnswering)

	// A renegotiating offer on a live connection gets no new "connected" report.
	if conn.ConnectionState() == webrtc.PeerConnectionStateConnected {
		m.transition(StateConnected)
	}
}

func (m *Machine) onAnswer(env signaling.Envelope) {
	if env.Description == nil {
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Msg("answer without description dropped")
		return
	}
	if m.conn == nil || !m.awaitingAnswer {
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Str("state", m.State().String()).Msg("unexpected answer dropped")
		return
	}
	if err := m.conn.SetRemoteDescription(*env.Description); err != nil {
		log.Error().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Msg("apply remote answer")
		return
	}
	m.awaitingAnswer = false
	m.remoteApplied = true
	m.flushPending(m.conn)

	if m.conn.ConnectionState() == webrtc.PeerConnectionStateConnected {
		m.transition(StateConnected)
	}
}

func (m *Machine) onCandidate(env signaling.Envelope) {
	if env.Candidate == nil {
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Msg("empty candidate dropped")
		return
	}
	if m.conn == nil || !m.remoteApplied {
		m.buffer(*env.Candidate)
		return
	}
	if err := m.conn.AddICECandidate(*env.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Msg("candidate rejected")
	}
}

func (m *Machine) onPeerDeparted(env signaling.Envelope) {
	m.pending = nil
	if m.conn == nil {
		log.Debug().Str("module", "negotiation").Str("sid", string(m.sid)).Str("peer", string(env.PeerID)).Msg("peer departed without connection, ignored")
		return
	}
	log.Info().Str("module", "negotiation").Str("sid", string(m.sid)).Str("peer", string(env.PeerID)).Msg("peer departed")
	m.teardown()
	m.transition(StateIdle)
	m.peerDeparted.emit(env.PeerID)
}

func (m *Machine) onConnectivity(gen uint64, s webrtc.PeerConnectionState) {
	if gen != m.gen {
		log.Debug().Str("module", "negotiation").Str("sid", string(m.sid)).Str("peer_connection_state", s.String()).Msg("stale connectivity report")
		return
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if st := m.State(); st == StateInitiating || st == StateAnswering {
			m.transition(StateConnected)
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Str("peer_connection_state", s.String()).Msg("connectivity lost")
	default:
		log.Debug().Str("module", "negotiation").Str("sid", string(m.sid)).Str("peer_connection_state", s.String()).Msg("connectivity")
	}
}

func (m *Machine) ensureConn() (core.MediaConnection, error) {
	if m.conn != nil {
		return m.conn, nil
	}
	conn, err := m.factory.NewMediaConnection(m.sid)
	if err != nil {
		return nil, err
	}
	m.gen++
	gen := m.gen

	for _, t := range m.tracks {
		if err := conn.AddTrack(t); err != nil {
			log.Error().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Str("track_id", t.ID()).Msg("attach track")
		}
	}
	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.enqueue(func() {
			if gen == m.gen {
				m.send(signaling.Candidate(c))
			}
		})
	})
	conn.OnRemoteStream(func(rs *core.RemoteStream) {
		m.enqueue(func() {
			if gen == m.gen {
				m.remoteStream.emit(rs)
			}
		})
	})
	conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.enqueue(func() { m.onConnectivity(gen, s) })
	})

	m.conn = conn
	m.remoteApplied = false
	m.awaitingAnswer = false
	log.Info().Str("module", "negotiation").Str("sid", string(m.sid)).Uint64("gen", gen).Msg("media connection created")
	return conn, nil
}

// abandon drops a connection whose initiating step failed, so the next
// peer-arrived starts clean.
func (m *Machine) abandon(step string, err error) {
	log.Error().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Str("step", step).Msg("initiate failed")
	m.teardown()
}

// answerFailed drops a connection created for this offer. A connection that
// was already live is kept.
func (m *Machine) answerFailed(step string, err error, fresh bool) {
	log.Error().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Str("step", step).Bool("fresh", fresh).Msg("answer failed")
	if fresh {
		m.teardown()
	}
}

func (m *Machine) teardown() {
	conn := m.conn
	m.conn = nil
	m.gen++
	m.remoteApplied = false
	m.awaitingAnswer = false
	m.pending = nil
	m.setRole(RoleUnassigned)
	if conn != nil {
		conn.Close()
	}
}

func (m *Machine) buffer(c webrtc.ICECandidateInit) {
	if len(m.pending) >= maxPendingCandidates {
		m.pending = m.pending[1:]
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Msg("candidate buffer full, oldest dropped")
	}
	m.pending = append(m.pending, c)
	log.Debug().Str("module", "negotiation").Str("sid", string(m.sid)).Int("pending", len(m.pending)).Msg("candidate buffered")
}

func (m *Machine) flushPending(conn core.MediaConnection) {
	pending := m.pending
	m.pending = nil
	for _, c := range pending {
		if err := conn.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "negotiation").Str("sid", string(m.sid)).Msg("buffered candidate rejected")
		}
	}
	if len(pending) > 0 {
		log.Debug().Str("module", "negotiation").Str("sid", string(m.sid)).Int("count", len(pending)).Msg("buffered candidates applied")
	}
}

func (m *Machine) send(env signaling.Envelope) {
	if m.sender == nil {
		log.Warn().Str("module", "negotiation").Str("sid", string(m.sid)).Str("kind", string(env.Kind)).Msg("no sender, envelope dropped")
		return
	}
	m.sender.Send(env)
}

func (m *Machine) setRole(r Role) {
	if Role(m.role.Swap(int32(r))) != r {
		log.Debug().Str("module", "negotiation").Str("sid", string(m.sid)).Str("role", r.String()).Msg("role")
	}
}

// markClosed stops further transitions without notifying subscribers.
func (m *Machine) markClosed() {
	if from := State(m.state.Swap(int32(StateClosed))); from != StateClosed {
		log.Info().Str("module", "negotiation").Str("sid", string(m.sid)).Str("from", from.String()).Str("to", StateClosed.String()).Msg("state")
	}
}

func (m *Machine) transition(to State) {
	for {
		from := State(m.state.Load())
		if from == StateClosed || from == to {
			return
		}
		if m.state.CompareAndSwap(int32(from), int32(to)) {
			log.Info().Str("module", "negotiation").Str("sid", string(m.sid)).Str("from", from.String()).Str("to", to.String()).Msg("state")
			m.stateChange.emit(to)
			return
		}
	}
}
