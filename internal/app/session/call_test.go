package session_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/adapters/channel"
	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/media"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/negotiation"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/app/session"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const callTimeout = 15 * time.Second

func newRelay(t *testing.T) (string, *orch.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
	}
	cfg := &config.Config{Mode: "test", Secret: "e2e", ReadLimit: 1 << 16}
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, o, app.NewMemoryRoomStore()))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", o
}

func newVNets(t *testing.T) (*vnet.Net, *vnet.Net) {
	t.Helper()
	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wan.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	require.NoError(t, err)
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(netA))
	require.NoError(t, wan.AddNet(netB))
	require.NoError(t, wan.Start())
	return netA, netB
}

type peer struct {
	s        *session.Session
	streams  atomic.Int32
	departed atomic.Int32
}

func newPeer(t *testing.T, signalingURL string, n *vnet.Net) *peer {
	t.Helper()
	conns, err := rtc.NewFactory(webrtc.Configuration{}, rtc.WithNet(n))
	require.NoError(t, err)

	p := &peer{}
	p.s = session.New(session.Config{
		RoomCode:     "ABC123",
		SignalingURL: signalingURL,
		Audio:        true,
		Video:        true,
	}, session.Deps{
		Channels:    channel.NewDialer(channel.Options{DialTimeout: 5 * time.Second}),
		Media:       media.NewSyntheticSource(),
		Connections: conns,
	})
	p.s.OnRemoteStream(func(*core.RemoteStream) { p.streams.Add(1) })
	p.s.OnPeerDeparted(func(domain.PeerID) { p.departed.Add(1) })
	t.Cleanup(p.s.Cleanup)
	return p
}

func waitState(t *testing.T, p *peer, want negotiation.State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.s.State() == want }, callTimeout, 20*time.Millisecond,
		"want %s, have %s", want, p.s.State())
}

func TestTwoPeerCall(t *testing.T) {
	signalingURL, relay := newRelay(t)
	netA, netB := newVNets(t)
	a := newPeer(t, signalingURL, netA)
	b := newPeer(t, signalingURL, netB)
	ctx := context.Background()

	require.NoError(t, a.s.Initialize(ctx))
	require.Eventually(t, func() bool { return len(relay.Members("ABC123")) == 1 }, callTimeout, 10*time.Millisecond)
	require.NoError(t, b.s.Initialize(ctx))

	waitState(t, a, negotiation.StateConnected)
	waitState(t, b, negotiation.StateConnected)
	require.Equal(t, negotiation.RoleInitiator, a.s.Role())
	require.Equal(t, negotiation.RoleResponder, b.s.Role())

	require.Eventually(t, func() bool { return a.streams.Load() == 1 && b.streams.Load() == 1 }, callTimeout, 20*time.Millisecond)

	b.s.Cleanup()
	waitState(t, a, negotiation.StateIdle)
	require.Equal(t, int32(1), a.departed.Load())
	require.Equal(t, negotiation.RoleUnassigned, a.s.Role())
}
