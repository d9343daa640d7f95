// Package session composes the local stream, the relay channel and the
// negotiation machine of one room.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app/negotiation"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/signaling"
)

var ErrSessionClosed = errors.New("session closed")

type Config struct {
	RoomCode     domain.RoomCode
	SignalingURL string
	Audio        bool
	Video        bool
}

// Deps are the capabilities a Session is built from.
type Deps struct {
	Channels    core.ChannelFactory
	Media       core.MediaSource
	Connections core.MediaConnectionFactory
}

type Session struct {
	id   core.SessionID
	cfg  Config
	deps Deps

	machine *negotiation.Machine

	mu          sync.Mutex
	initialized bool
	closed      bool
	stream      core.LocalStream
	channel     core.SignalChannel
}

func New(cfg Config, deps Deps) *Session {
	id := core.SessionID(uuid.NewString())
	return &Session{
		id:      id,
		cfg:     cfg,
		deps:    deps,
		machine: negotiation.New(id, deps.Connections),
	}
}

func (s *Session) ID() core.SessionID { return s.id }

func (s *Session) RoomCode() domain.RoomCode { return s.cfg.RoomCode }

func (s *Session) State() negotiation.State { return s.machine.State() }

func (s *Session) Role() negotiation.Role { return s.machine.Role() }

// OnStateChange replaces the state change subscriber.
func (s *Session) OnStateChange(fn func(negotiation.State)) { s.machine.OnStateChange(fn) }

// OnRemoteStream replaces the remote stream subscriber. The stream is only
// valid until the peer departs or the session is cleaned up.
func (s *Session) OnRemoteStream(fn func(*core.RemoteStream)) { s.machine.OnRemoteStream(fn) }

// OnPeerDeparted replaces the departure subscriber.
func (s *Session) OnPeerDeparted(fn func(domain.PeerID)) { s.machine.OnPeerDeparted(fn) }

// Initialize acquires local media and opens the room channel. A second call
// on an initialized session is a no-op. On failure everything acquired so
// far is released and the session may be initialized again.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.initialized {
		log.Debug().Str("module", "session").Str("sid", string(s.id)).Msg("already initialized")
		return nil
	}

	stream, err := s.deps.Media.Acquire(ctx, s.cfg.Audio, s.cfg.Video)
	if err != nil {
		log.Error().Err(err).Str("module", "session").Str("sid", string(s.id)).Msg("acquire media")
		return err
	}

	url := signaling.RoomURL(s.cfg.SignalingURL, s.cfg.RoomCode)
	ch, err := s.deps.Channels.Connect(ctx, url, core.ChannelHandler{
		OnEnvelope: s.machine.Handle,
		OnClosed: func(err error) {
			log.Warn().Err(err).Str("module", "session").Str("sid", string(s.id)).Str("room", string(s.cfg.RoomCode)).Msg("signaling channel lost")
		},
	})
	if err != nil {
		stream.Stop()
		log.Error().Err(err).Str("module", "session").Str("sid", string(s.id)).Msg("open signaling channel")
		return err
	}

	s.stream = stream
	s.channel = ch
	s.initialized = true
	s.machine.Start(ch, stream.Tracks())
	log.Info().Str("module", "session").Str("sid", string(s.id)).Str("room", string(s.cfg.RoomCode)).Msg("initialized")
	return nil
}

func (s *Session) ToggleAudio() bool { return s.Toggle(webrtc.RTPCodecTypeAudio) }
func (s *Session) ToggleVideo() bool { return s.Toggle(webrtc.RTPCodecTypeVideo) }

// Toggle flips the first local track of kind and returns its new state, or
// false without changes when there is no such track.
func (s *Session) Toggle(kind webrtc.RTPCodecType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return false
	}
	for _, t := range s.stream.Tracks() {
		if t.Kind() != kind {
			continue
		}
		on := !t.Enabled()
		t.SetEnabled(on)
		return on
	}
	return false
}

// Cleanup stops local tracks, closes the peer connection and the channel.
// It is idempotent; the session cannot be reused afterwards. Subscribers may
// still call into the session while it runs.
func (s *Session) Cleanup() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stream, ch := s.stream, s.channel
	s.stream, s.channel = nil, nil
	s.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	s.machine.Close()
	if ch != nil {
		ch.Close()
	}
	log.Info().Str("module", "session").Str("sid", string(s.id)).Str("room", string(s.cfg.RoomCode)).Msg("cleaned up")
}
