package signaling

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/domain"
)

// Frames built by the relay server for the peers of a room.

func PeerJoinedFrame(id domain.PeerID) ([]byte, error) {
	return json.Marshal(frame{Type: string(KindPeerArrived), PeerID: id})
}

func PeerLeftFrame(id domain.PeerID) ([]byte, error) {
	return json.Marshal(frame{Type: string(KindPeerDeparted), PeerID: id})
}

// WrapSignal forwards a peer's raw message to the other side unchanged.
func WrapSignal(from domain.PeerID, raw []byte) ([]byte, error) {
	return json.Marshal(frame{Type: frameSignaling, PeerID: from, Message: json.RawMessage(raw)})
}

func ErrorFrame(msg string) ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{string(KindError), msg})
}

func PongFrame() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{framePong})
}

// IsPing reports whether a raw inbound relay message is a keepalive ping.
// The second result is false when raw is not valid JSON.
func IsPing(raw []byte) (ping bool, valid bool) {
	if !json.Valid(raw) {
		return false, false
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false, true
	}
	return probe.Type == framePing, true
}
