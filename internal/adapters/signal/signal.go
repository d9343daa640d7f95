package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const sendBuffer = 32

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	RateLimit    int
	RateInterval time.Duration
}

// SignalWSController serves the room relay: every text message a peer sends
// is forwarded to the other peer of the same room.
type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *RoomRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewRoomRateLimiter(opts.RateLimit, opts.RateInterval),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRoom upgrades a request for /ws/room/:code/ and joins the relay
// group of that code.
func (ctl *SignalWSController) HandleRoom(ctx context.Context, c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing room code"})
		return
	}
	if ctl.isFull(code) {
		log.Warn().Str("module", "signal").Str("room", string(code)).Msg("room full, upgrade refused")
		c.JSON(http.StatusConflict, gin.H{"error": core.ErrRoomFull.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	sid := core.SessionID(uuid.NewString())
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}
	meta := domain.NewMember(domain.PeerID(sid), code)
	sess := core.NewMemberSession(meta, conn)
	ctx, cancel := context.WithCancel(ctx)

	if err := ctl.Orch.Join(sid, code, sess, cancel); err != nil {
		cancel()
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("room", string(code)).Msg("join refused")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(code)).Msg("new WS connection")

	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

func (ctl *SignalWSController) isFull(code domain.RoomCode) bool {
	for _, info := range ctl.Orch.Rooms.List() {
		if info.Code == code {
			return info.MemberCount >= core.MaxRoomMembers
		}
	}
	return false
}
