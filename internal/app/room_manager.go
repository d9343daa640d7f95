package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// RoomManagerImpl holds the live relay groups, one per room code.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]core.RoomService
}

func NewRoomManager() core.RoomManager {
	return &RoomManagerImpl{rooms: make(map[domain.RoomCode]core.RoomService)}
}

func (f *RoomManagerImpl) GetOrCreate(code domain.RoomCode) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[code]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[code]; ok {
		return room
	}
	room = core.NewRoomService(code)
	f.rooms[code] = room
	return room
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for code, r := range f.rooms {
		out = append(out, core.RoomInfo{Code: code, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (f *RoomManagerImpl) StopRoom(code domain.RoomCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, code)
}
