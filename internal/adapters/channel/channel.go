// Package channel is the peer side of the room relay: one websocket per
// session, carrying signaling envelopes in both directions.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/signaling"
)

var ErrBackpressure = errors.New("backpressure")

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

type Options struct {
	ReadLimit   int64
	PingPeriod  time.Duration
	DialTimeout time.Duration
}

// Dialer opens WSChannels. It implements core.ChannelFactory.
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
}

func NewDialer(opts Options) *Dialer {
	d := *websocket.DefaultDialer
	if opts.DialTimeout > 0 {
		d.HandshakeTimeout = opts.DialTimeout
	}
	return &Dialer{opts: opts, dialer: &d}
}

func (d *Dialer) Connect(ctx context.Context, url string, h core.ChannelHandler) (core.SignalChannel, error) {
	c := &WSChannel{
		url:     url,
		handler: h,
		send:    make(chan core.Frame, sendBuffer),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(core.ChannelConnecting))

	ws, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.state.Store(int32(core.ChannelError))
		cerr := &core.ConnectionError{URL: url, Err: err}
		if resp != nil {
			cerr.Status = resp.StatusCode
			_ = resp.Body.Close()
		}
		log.Error().Err(err).Str("module", "channel").Str("url", url).Msg("connect failed")
		c.state.Store(int32(core.ChannelClosed))
		return nil, cerr
	}
	if d.opts.ReadLimit > 0 {
		ws.SetReadLimit(d.opts.ReadLimit)
	}

	c.conn = ws
	c.state.Store(int32(core.ChannelOpen))
	log.Info().Str("module", "channel").Str("url", url).Msg("connected")

	go c.writePump(d.opts.PingPeriod)
	go c.readPump()
	return c, nil
}

// WSChannel is one open relay connection.
type WSChannel struct {
	url     string
	conn    *websocket.Conn
	handler core.ChannelHandler
	send    chan core.Frame
	done    chan struct{}

	state atomic.Int32

	mu     sync.RWMutex
	closed bool
}

func (c *WSChannel) State() core.ChannelState { return core.ChannelState(c.state.Load()) }

func (c *WSChannel) Send(env signaling.Envelope) {
	if c.State() != core.ChannelOpen {
		log.Debug().Str("module", "channel").Str("kind", string(env.Kind)).Msg("send dropped, channel not open")
		return
	}
	data, err := signaling.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "channel").Str("kind", string(env.Kind)).Msg("encode")
		return
	}
	if err := c.trySend(data); err != nil {
		log.Warn().Err(err).Str("module", "channel").Str("kind", string(env.Kind)).Msg("send dropped")
	}
}

func (c *WSChannel) trySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close is idempotent and never fires the OnClosed hook.
func (c *WSChannel) Close() {
	if !c.shutdown() {
		return
	}
	log.Info().Str("module", "channel").Str("url", c.url).Msg("closed")
}

// shutdown reports whether this call performed the close.
func (c *WSChannel) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.state.Store(int32(core.ChannelClosed))
	close(c.send)
	close(c.done)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.conn.Close()
	return true
}

func (c *WSChannel) writePump(pingPeriod time.Duration) {
	var ping <-chan time.Time
	if pingPeriod > 0 {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-c.done:
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "channel").Msg("ping")
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(data); err != nil {
				log.Error().Err(err).Str("module", "channel").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *WSChannel) write(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSChannel) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.shutdown() {
				log.Warn().Err(err).Str("module", "channel").Str("url", c.url).Msg("remote closed")
				if c.handler.OnClosed != nil {
					c.handler.OnClosed(err)
				}
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *WSChannel) dispatch(data []byte) {
	env, err := signaling.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "channel").Int("bytes", len(data)).Msg("malformed envelope dropped")
		return
	}
	if env.Kind == signaling.KindError {
		log.Warn().Str("module", "channel").Str("message", env.Message).Msg("relay error")
		return
	}
	if c.handler.OnEnvelope != nil {
		c.handler.OnEnvelope(env)
	}
}
