package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/signaling"
)

// Join adds sess to the relay group of code and announces it to the peer
// already there. It fails with core.ErrRoomFull.
func (o *Orchestrator) Join(sid core.SessionID, code domain.RoomCode, sess core.MemberSession, cancel context.CancelFunc) error {
	o.membership.Lock()
	room := o.Rooms.GetOrCreate(code)
	if err := room.AddMember(sid, sess); err != nil {
		o.membership.Unlock()
		return err
	}
	o.Registry.Bind(sid, code, sess, cancel)
	o.membership.Unlock()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).Msg("added to room")

	frame, err := signaling.PeerJoinedFrame(sess.Meta().Peer)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("peer joined frame")
		return nil
	}
	o.handleDropped(room, room.Broadcast(sid, frame))
	return nil
}

// Leave removes sid from its room and tells the remaining peer. Calling it
// for an unknown sid is a no-op.
func (o *Orchestrator) Leave(sid core.SessionID) {
	o.membership.Lock()
	code, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		o.membership.Unlock()
		return
	}
	room := o.Rooms.GetOrCreate(code)
	room.RemoveMember(sid)
	o.Registry.Unbind(sid)
	empty := room.MemberCount() == 0
	if empty {
		o.Rooms.StopRoom(code)
	}
	o.membership.Unlock()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).Bool("room_empty", empty).Msg("left room")

	if empty {
		return
	}
	frame, err := signaling.PeerLeftFrame(sess.Meta().Peer)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("peer left frame")
		return
	}
	o.handleDropped(room, room.Broadcast(sid, frame))
}

// KickBySID stops the connection loops of sid and removes it from its room.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.Registry.Cancel(sid)
	o.Leave(sid)
}

func (o *Orchestrator) Members(code domain.RoomCode) []core.MemberDTO {
	for _, info := range o.Rooms.List() {
		if info.Code == code {
			return o.Rooms.GetOrCreate(code).MembersSnapshot()
		}
	}
	return nil
}

// EvictRoom disconnects every peer of code and drops its relay group.
func (o *Orchestrator) EvictRoom(code domain.RoomCode) {
	for _, snap := range o.Registry.MembersOfRoom(code) {
		o.KickBySID(snap.SID)
	}
	o.membership.Lock()
	o.Rooms.StopRoom(code)
	o.membership.Unlock()
}
