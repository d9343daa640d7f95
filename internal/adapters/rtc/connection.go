package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// WebRTCConnection adapts a pion PeerConnection to core.MediaConnection.
type WebRTCConnection struct {
	pc  *webrtc.PeerConnection
	sid core.SessionID

	mu       sync.RWMutex
	onICE    func(webrtc.ICECandidateInit)
	onStream func(*core.RemoteStream)
	onState  func(webrtc.PeerConnectionState)
	streams  map[string]*core.RemoteStream

	closed atomic.Bool
}

func newWebRTCConnection(pc *webrtc.PeerConnection, sid core.SessionID) *WebRTCConnection {
	c := &WebRTCConnection{pc: pc, sid: sid, streams: make(map[string]*core.RemoteStream)}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.RLock()
		fn := c.onState
		c.mu.RUnlock()
		if fn != nil {
			fn(s)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")

		c.mu.Lock()
		stream, known := c.streams[track.StreamID()]
		if !known {
			stream = core.NewRemoteStream(track.StreamID())
			c.streams[track.StreamID()] = stream
		}
		stream.AddTrack(track)
		fn := c.onStream
		c.mu.Unlock()

		if !known && fn != nil {
			fn(stream)
		}
	})

	return c
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(d webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(d)
}

func (c *WebRTCConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(d)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

// AddTrack attaches a local track and drains its RTCP so interceptors keep working.
func (c *WebRTCConnection) AddTrack(t core.LocalTrack) error {
	sender, err := c.pc.AddTrack(t.Local())
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *WebRTCConnection) OnRemoteStream(fn func(*core.RemoteStream)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStream = fn
}

func (c *WebRTCConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *WebRTCConnection) IsClosed() bool { return c.closed.Load() }

func (c *WebRTCConnection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	c.onICE, c.onStream, c.onState = nil, nil, nil
	c.streams = make(map[string]*core.RemoteStream)
	c.mu.Unlock()

	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
	}
}
