package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is one peer-connection instance of a session.
type MediaConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate. It fails when the
	// description state cannot accept it.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddTrack attaches a local track. The connection never stops it.
	AddTrack(LocalTrack) error
	ConnectionState() webrtc.PeerConnectionState

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnRemoteStream fires once per new remote stream.
	OnRemoteStream(func(*RemoteStream))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))

	// Close should stop all underlying transport resources.
	Close()
	IsClosed() bool
}

type MediaConnectionFactory interface {
	NewMediaConnection(sid SessionID) (MediaConnection, error)
}

// LocalTrack is one captured audio or video track. Enabled only gates what
// is sent; it never triggers renegotiation.
type LocalTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(bool)
	// Stop is idempotent.
	Stop()
	Local() webrtc.TrackLocal
}

// LocalStream is the owned output of a MediaSource.
type LocalStream interface {
	ID() string
	Tracks() []LocalTrack
	// Stop stops every track exactly once.
	Stop()
}

type MediaSource interface {
	// Acquire fails with *MediaAccessError.
	Acquire(ctx context.Context, audio, video bool) (LocalStream, error)
}
