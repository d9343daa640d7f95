package core

import (
	"github.com/dkeye/Meet/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	Peer     domain.PeerID `json:"peer_id"`
	JoinedAt string        `json:"joined_at"`
}

// RoomService is the core-facing API of a live relay group.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Code() domain.RoomCode
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember fails with ErrRoomFull once the room holds its two peers.
	AddMember(sid SessionID, ms MemberSession) error
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	Code        domain.RoomCode `json:"code"`
	MemberCount int             `json:"member_count"`
}

type RoomManager interface {
	GetOrCreate(code domain.RoomCode) RoomService
	List() []RoomInfo
	StopRoom(code domain.RoomCode)
}

// RoomStore persists rooms created through the REST surface.
type RoomStore interface {
	Create(name string) (*domain.Room, error)
	Get(code domain.RoomCode) (*domain.Room, error)
	List() []*domain.Room
	Deactivate(code domain.RoomCode) error
}
