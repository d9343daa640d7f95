package orch

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/signaling"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy

	// membership serializes Join/Leave so an emptied room can be dropped
	// without racing a concurrent join.
	membership sync.Mutex
}

// OnFrame relays a raw peer message to the rest of its room.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	code, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	wrapped, err := signaling.WrapSignal(sess.Meta().Peer, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("wrap signal")
		return
	}
	room := o.Rooms.GetOrCreate(code)
	o.handleDropped(room, room.Broadcast(sid, wrapped))
}

func (o *Orchestrator) handleDropped(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfRoom(room.Code()) {
				if snap.Session == slow {
					o.KickBySID(snap.SID)
				}
			}
		case app.DropFrame, app.NoAction:
		}
	}
}
