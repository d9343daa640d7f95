package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Track is a captured track backed by a static RTP track. Packets written
// while disabled or after Stop are dropped.
type Track struct {
	local *webrtc.TrackLocalStaticRTP
	kind  webrtc.RTPCodecType

	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func newTrack(kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability, id, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{local: local, kind: kind, done: make(chan struct{})}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) ID() string                { return t.local.ID() }
func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }
func (t *Track) Local() webrtc.TrackLocal  { return t.local }
func (t *Track) Enabled() bool             { return t.enabled.Load() }
func (t *Track) Stopped() bool             { return t.stopped.Load() }

func (t *Track) SetEnabled(on bool) {
	t.enabled.Store(on)
	log.Debug().Str("module", "media").Str("track_id", t.ID()).Bool("enabled", on).Msg("track toggled")
}

func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		close(t.done)
		log.Info().Str("module", "media").Str("track_id", t.ID()).Str("kind", t.kind.String()).Msg("track stopped")
	})
}

// Done is closed once the track is stopped.
func (t *Track) Done() <-chan struct{} { return t.done }

func (t *Track) WriteRTP(pkt *rtp.Packet) error {
	if t.stopped.Load() || !t.enabled.Load() {
		return nil
	}
	return t.local.WriteRTP(pkt)
}
