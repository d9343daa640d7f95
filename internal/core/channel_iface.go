package core

import (
	"context"

	"github.com/dkeye/Meet/internal/signaling"
)

type ChannelState int32

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelError
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelError:
		return "error"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignalChannel is the client side of the room relay.
type SignalChannel interface {
	// Send drops the envelope unless the channel is open.
	Send(signaling.Envelope)
	State() ChannelState
	// Close is idempotent.
	Close()
}

// ChannelHandler receives inbound envelopes in receipt order on one goroutine.
type ChannelHandler struct {
	OnEnvelope func(signaling.Envelope)
	// OnClosed fires when the remote end drops the connection, never on Close.
	OnClosed func(error)
}

type ChannelFactory interface {
	// Connect fails with *ConnectionError.
	Connect(ctx context.Context, url string, h ChannelHandler) (SignalChannel, error)
}
