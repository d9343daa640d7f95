package domain

import "time"

// Member represents a peer's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	Peer     PeerID
	Room     RoomCode
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(peer PeerID, room RoomCode) *Member {
	return &Member{Peer: peer, Room: room, JoinedAt: time.Now()}
}
