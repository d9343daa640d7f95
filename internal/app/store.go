package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const maxCodeAttempts = 8

var ErrCodeSpaceExhausted = errors.New("could not generate a unique room code")

// MemoryRoomStore keeps REST-created rooms in memory. Deactivated rooms
// keep their code reserved.
type MemoryRoomStore struct {
	mu     sync.RWMutex
	byCode map[domain.RoomCode]*domain.Room

	newCode func() (domain.RoomCode, error)
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{
		byCode:  make(map[domain.RoomCode]*domain.Room),
		newCode: domain.GenerateRoomCode,
	}
}

func (s *MemoryRoomStore) Create(name string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		if _, taken := s.byCode[code]; taken {
			continue
		}
		room, err := domain.NewRoom(code, name)
		if err != nil {
			return nil, err
		}
		s.byCode[code] = room
		log.Info().Str("module", "app.store").Str("room", string(code)).Str("name", name).Msg("room created")
		cp := *room
		return &cp, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// Get returns an active room or core.ErrRoomNotFound.
func (s *MemoryRoomStore) Get(code domain.RoomCode) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.byCode[code]
	if !ok || !room.IsActive {
		return nil, core.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

// List returns active rooms, newest first.
func (s *MemoryRoomStore) List() []*domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Room, 0, len(s.byCode))
	for _, room := range s.byCode {
		if !room.IsActive {
			continue
		}
		cp := *room
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryRoomStore) Deactivate(code domain.RoomCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.byCode[code]
	if !ok || !room.IsActive {
		return core.ErrRoomNotFound
	}
	room.IsActive = false
	log.Info().Str("module", "app.store").Str("room", string(code)).Msg("room deactivated")
	return nil
}
