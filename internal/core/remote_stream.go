package core

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream groups the remote tracks sharing one stream id. It is only
// valid while the MediaConnection that produced it is open.
type RemoteStream struct {
	id string

	mu     sync.RWMutex
	tracks []*webrtc.TrackRemote
}

func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id}
}

func (s *RemoteStream) ID() string { return s.id }

func (s *RemoteStream) AddTrack(t *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*webrtc.TrackRemote, len(s.tracks))
	copy(out, s.tracks)
	return out
}
