package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app/negotiation"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/signaling"
)

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	enabled bool
	stops   int
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) Enabled() bool             { return t.enabled }
func (t *fakeTrack) SetEnabled(on bool)        { t.enabled = on }
func (t *fakeTrack) Stop()                     { t.stops++ }
func (t *fakeTrack) Local() webrtc.TrackLocal  { return nil }

type fakeStream struct {
	tracks []*fakeTrack
	stops  int
}

func (s *fakeStream) ID() string { return "local" }

func (s *fakeStream) Tracks() []core.LocalTrack {
	out := make([]core.LocalTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *fakeStream) Stop() {
	s.stops++
	for _, t := range s.tracks {
		t.Stop()
	}
}

type fakeSource struct {
	calls  int
	err    error
	stream *fakeStream
}

func (f *fakeSource) Acquire(_ context.Context, audio, video bool) (core.LocalStream, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeStream{}
	if audio {
		s.tracks = append(s.tracks, &fakeTrack{id: "a", kind: webrtc.RTPCodecTypeAudio, enabled: true})
	}
	if video {
		s.tracks = append(s.tracks, &fakeTrack{id: "v", kind: webrtc.RTPCodecTypeVideo, enabled: true})
	}
	f.stream = s
	return s, nil
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []signaling.Envelope
	closes int
}

func (c *fakeChannel) Send(env signaling.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
}

func (c *fakeChannel) State() core.ChannelState { return core.ChannelOpen }

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

type fakeChannels struct {
	urls     []string
	handlers []core.ChannelHandler
	channels []*fakeChannel
	err      error
}

func (f *fakeChannels) Connect(_ context.Context, url string, h core.ChannelHandler) (core.SignalChannel, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	ch := &fakeChannel{}
	f.handlers = append(f.handlers, h)
	f.channels = append(f.channels, ch)
	return ch, nil
}

type fakeConn struct {
	mu     sync.Mutex
	closes int
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}
func (c *fakeConn) SetLocalDescription(webrtc.SessionDescription) error      { return nil }
func (c *fakeConn) SetRemoteDescription(webrtc.SessionDescription) error     { return nil }
func (c *fakeConn) AddICECandidate(webrtc.ICECandidateInit) error            { return nil }
func (c *fakeConn) AddTrack(core.LocalTrack) error                           { return nil }
func (c *fakeConn) ConnectionState() webrtc.PeerConnectionState              { return webrtc.PeerConnectionStateNew }
func (c *fakeConn) OnICECandidate(func(webrtc.ICECandidateInit))             {}
func (c *fakeConn) OnRemoteStream(func(*core.RemoteStream))                  {}
func (c *fakeConn) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}
func (c *fakeConn) IsClosed() bool                                           { return c.closes > 0 }

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

type fakeConns struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeConns) NewMediaConnection(core.SessionID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

type harness struct {
	src   *fakeSource
	chans *fakeChannels
	conns *fakeConns
	s     *Session
}

func newHarness(t *testing.T, audio, video bool) *harness {
	t.Helper()
	h := &harness{src: &fakeSource{}, chans: &fakeChannels{}, conns: &fakeConns{}}
	h.s = New(Config{
		RoomCode:     "ABC123",
		SignalingURL: "ws://relay.test/ws",
		Audio:        audio,
		Video:        video,
	}, Deps{Channels: h.chans, Media: h.src, Connections: h.conns})
	t.Cleanup(h.s.Cleanup)
	return h
}

func flush(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.machine.Flush(ctx))
}

func TestInitializeConnectsToRoom(t *testing.T) {
	h := newHarness(t, true, true)
	require.NoError(t, h.s.Initialize(context.Background()))

	assert.Equal(t, []string{"ws://relay.test/ws/room/ABC123/"}, h.chans.urls)
	assert.Equal(t, negotiation.StateIdle, h.s.State())
	assert.Equal(t, negotiation.RoleUnassigned, h.s.Role())
}

func TestDoubleInitializeIsNoop(t *testing.T) {
	h := newHarness(t, true, false)
	require.NoError(t, h.s.Initialize(context.Background()))
	require.NoError(t, h.s.Initialize(context.Background()))

	assert.Equal(t, 1, h.src.calls)
	assert.Len(t, h.chans.channels, 1)

	h.chans.handlers[0].OnEnvelope(signaling.PeerArrived("peer-b"))
	flush(t, h.s)
	assert.Len(t, h.conns.conns, 1)
}

func TestInitializeMediaFailure(t *testing.T) {
	h := newHarness(t, true, true)
	h.src.err = &core.MediaAccessError{Kind: "audio", Err: core.ErrPermissionDenied}

	err := h.s.Initialize(context.Background())
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.Empty(t, h.chans.urls)
}

func TestInitializeChannelFailureReleasesMedia(t *testing.T) {
	h := newHarness(t, true, true)
	h.chans.err = &core.ConnectionError{URL: "ws://relay.test/ws/room/ABC123/", Err: errors.New("refused")}

	err := h.s.Initialize(context.Background())
	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.NotNil(t, h.src.stream)
	assert.Equal(t, 1, h.src.stream.stops)
	for _, tr := range h.src.stream.tracks {
		assert.Equal(t, 1, tr.stops)
	}
}

func TestToggle(t *testing.T) {
	h := newHarness(t, true, false)
	require.NoError(t, h.s.Initialize(context.Background()))

	assert.False(t, h.s.ToggleAudio())
	assert.False(t, h.src.stream.tracks[0].enabled)
	assert.True(t, h.s.ToggleAudio())

	assert.False(t, h.s.ToggleVideo(), "no video track")
	assert.True(t, h.src.stream.tracks[0].enabled, "audio untouched by video toggle")
}

func TestToggleBeforeInitialize(t *testing.T) {
	h := newHarness(t, true, true)
	assert.False(t, h.s.ToggleAudio())
}

func TestCleanupReleasesEverythingOnce(t *testing.T) {
	h := newHarness(t, true, true)
	require.NoError(t, h.s.Initialize(context.Background()))
	h.chans.handlers[0].OnEnvelope(signaling.PeerArrived("peer-b"))
	flush(t, h.s)

	h.s.Cleanup()
	h.s.Cleanup()

	for _, tr := range h.src.stream.tracks {
		assert.Equal(t, 1, tr.stops)
	}
	require.Len(t, h.conns.conns, 1)
	assert.Equal(t, 1, h.conns.conns[0].closes)
	assert.Equal(t, 1, h.chans.channels[0].closes)
	assert.Equal(t, negotiation.StateClosed, h.s.State())

	assert.ErrorIs(t, h.s.Initialize(context.Background()), ErrSessionClosed)
}

func TestSubscribersMayToggleDuringCleanup(t *testing.T) {
	h := newHarness(t, true, true)
	require.NoError(t, h.s.Initialize(context.Background()))

	var toggles []bool
	h.s.OnStateChange(func(negotiation.State) { toggles = append(toggles, h.s.ToggleAudio()) })
	h.s.OnPeerDeparted(func(domain.PeerID) { h.s.ToggleVideo() })
	h.chans.handlers[0].OnEnvelope(signaling.PeerArrived("peer-b"))
	h.chans.handlers[0].OnEnvelope(signaling.PeerDeparted("peer-b"))
	h.chans.handlers[0].OnEnvelope(signaling.PeerArrived("peer-b"))

	done := make(chan struct{})
	go func() {
		h.s.Cleanup()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Cleanup did not return")
	}
	assert.Equal(t, negotiation.StateClosed, h.s.State())
	require.NotEmpty(t, toggles)
	assert.False(t, toggles[len(toggles)-1], "no stream once cleanup has started")
}

func TestOutboundGoesThroughChannel(t *testing.T) {
	h := newHarness(t, true, true)
	require.NoError(t, h.s.Initialize(context.Background()))

	h.chans.handlers[0].OnEnvelope(signaling.PeerArrived("peer-b"))
	flush(t, h.s)

	ch := h.chans.channels[0]
	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.sent, 1)
	assert.Equal(t, signaling.KindOffer, ch.sent[0].Kind)
}
