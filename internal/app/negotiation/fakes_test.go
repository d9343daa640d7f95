package negotiation

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/signaling"
)

type fakeConn struct {
	mu sync.Mutex

	remote      []webrtc.SessionDescription
	local       []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	tracks      []core.LocalTrack
	closeCalls  int
	state       webrtc.PeerConnectionState
	failRemote  bool
	panicOffer  bool
	onCandidate func(webrtc.ICECandidateInit)
	onStream    func(*core.RemoteStream)
	onState     func(webrtc.PeerConnectionState)
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	p := c.panicOffer
	c.mu.Unlock()
	if p {
		panic("offer exploded")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = append(c.local, d)
	return nil
}

func (c *fakeConn) SetRemoteDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRemote {
		return errors.New("bad sdp")
	}
	c.remote = append(c.remote, d)
	return nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.remote) == 0 {
		return errors.New("no remote description")
	}
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *fakeConn) AddTrack(t core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *fakeConn) ConnectionState() webrtc.PeerConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *fakeConn) OnRemoteStream(fn func(*core.RemoteStream)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStream = fn
}

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	c.state = webrtc.PeerConnectionStateClosed
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls > 0
}

// report simulates pion reporting a connectivity change.
func (c *fakeConn) report(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	fn(s)
}

func (c *fakeConn) gather(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	fn(ci)
}

func (c *fakeConn) stream(rs *core.RemoteStream) {
	c.mu.Lock()
	fn := c.onStream
	c.mu.Unlock()
	fn(rs)
}

func (c *fakeConn) appliedCandidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  bool
	setup func(*fakeConn)
}

func (f *fakeFactory) NewMediaConnection(core.SessionID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no connection for you")
	}
	c := &fakeConn{state: webrtc.PeerConnectionStateNew}
	if f.setup != nil {
		f.setup(c)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) created() []*fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeConn(nil), f.conns...)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []signaling.Envelope
}

func (s *fakeSender) Send(env signaling.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
}

func (s *fakeSender) kinds() []signaling.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signaling.Kind, 0, len(s.sent))
	for _, e := range s.sent {
		out = append(out, e.Kind)
	}
	return out
}

func (s *fakeSender) count(k signaling.Kind) int {
	n := 0
	for _, got := range s.kinds() {
		if got == k {
			n++
		}
	}
	return n
}
