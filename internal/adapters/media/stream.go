package media

import (
	"sync"

	"github.com/dkeye/Meet/internal/core"
)

// Stream is the owned result of Acquire.
type Stream struct {
	id     string
	tracks []*Track
	once   sync.Once
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []core.LocalTrack {
	out := make([]core.LocalTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Stream) Stop() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.Stop()
		}
	})
}
