// Package media provides a synthetic capture source: real pion tracks fed
// with generated RTP instead of a camera and microphone.
package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

var (
	opusCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	vp8Codec  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}

	// Opus DTX silence frame.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	// VP8 payload descriptor (start of partition) followed by a stub frame.
	vp8Stub = []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a}
)

const (
	audioInterval = 20 * time.Millisecond
	videoInterval = 33 * time.Millisecond
)

type SyntheticSource struct {
	// HasAudio/HasVideo describe which devices exist.
	HasAudio bool
	HasVideo bool
	// Deny makes every Acquire fail as if the user refused access.
	Deny bool
	// Generate starts an RTP generator per track.
	Generate bool
}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{HasAudio: true, HasVideo: true, Generate: true}
}

func (s *SyntheticSource) Acquire(ctx context.Context, audio, video bool) (core.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.MediaAccessError{Err: err}
	}
	if !audio && !video {
		return nil, &core.MediaAccessError{Err: core.ErrNothingRequested}
	}
	if s.Deny {
		return nil, &core.MediaAccessError{Err: core.ErrPermissionDenied}
	}
	if audio && !s.HasAudio {
		return nil, &core.MediaAccessError{Kind: webrtc.RTPCodecTypeAudio.String(), Err: core.ErrNoSuchDevice}
	}
	if video && !s.HasVideo {
		return nil, &core.MediaAccessError{Kind: webrtc.RTPCodecTypeVideo.String(), Err: core.ErrNoSuchDevice}
	}

	stream := &Stream{id: uuid.NewString()}
	if audio {
		t, err := newTrack(webrtc.RTPCodecTypeAudio, opusCodec, "audio-"+uuid.NewString(), stream.id)
		if err != nil {
			return nil, &core.MediaAccessError{Kind: "audio", Err: err}
		}
		stream.tracks = append(stream.tracks, t)
	}
	if video {
		t, err := newTrack(webrtc.RTPCodecTypeVideo, vp8Codec, "video-"+uuid.NewString(), stream.id)
		if err != nil {
			return nil, &core.MediaAccessError{Kind: "video", Err: err}
		}
		stream.tracks = append(stream.tracks, t)
	}

	if s.Generate {
		for _, t := range stream.tracks {
			go generate(t)
		}
	}
	log.Info().Str("module", "media").Str("stream_id", stream.id).Bool("audio", audio).Bool("video", video).Msg("local stream acquired")
	return stream, nil
}

// generate writes placeholder RTP until the track stops.
func generate(t *Track) {
	interval, step, payload := audioInterval, uint32(960), opusSilence
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		interval, step, payload = videoInterval, uint32(3000), vp8Stub
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint16
	var ts uint32
	for {
		select {
		case <-t.Done():
			return
		case <-ticker.C:
			seq++
			ts += step
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         t.Kind() == webrtc.RTPCodecTypeVideo,
					SequenceNumber: seq,
					Timestamp:      ts,
				},
				Payload: payload,
			}
			if err := t.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("module", "media").Str("track_id", t.ID()).Msg("write rtp")
			}
		}
	}
}
