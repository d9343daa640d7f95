package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

// MaxRoomMembers is the two-party limit of a relay group.
const MaxRoomMembers = 2

// roomImpl is a threadsafe in-memory relay group.
// It never closes adapter-owned resources.
type roomImpl struct {
	code  domain.RoomCode
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
	order []SessionID
}

func NewRoomService(code domain.RoomCode) RoomService {
	return &roomImpl{
		code:  code,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Code() domain.RoomCode { return r.code }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		return nil
	}
	if len(r.bySID) >= MaxRoomMembers {
		log.Warn().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Msg("room full")
		return ErrRoomFull
	}
	r.bySID[sid] = ms
	r.order = append(r.order, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok {
		return
	}
	delete(r.bySID, sid)
	for i, s := range r.order {
		if s == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Msg("member removed")
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range r.order {
		if sid == from {
			continue
		}
		m := r.bySID[sid]
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.order))
	for _, sid := range r.order {
		meta := r.bySID[sid].Meta()
		out = append(out, MemberDTO{Peer: meta.Peer, JoinedAt: meta.JoinedAt.UTC().Format(time.RFC3339)})
	}
	return out
}
