// Package domain contains entity without logic, just meta-data
package domain

import (
	"github.com/google/uuid"
)

// PeerID identifies one websocket participant of a room.
type PeerID string

// NewPeerID is a tiny helper to avoid ad-hoc uuid calls in adapters.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}
