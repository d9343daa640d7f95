// Package signaling models the room relay wire protocol: the envelopes a
// peer receives from the relay and the messages it sends back.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/domain"
)

type Kind string

const (
	KindPeerArrived  Kind = "peer_joined"
	KindPeerDeparted Kind = "peer_left"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindCandidate    Kind = "ice-candidate"
	// KindError is a relay-originated complaint about something we sent.
	KindError Kind = "error"
)

const (
	frameSignaling = "signaling"
	framePing      = "ping"
	framePong      = "pong"
)

var (
	ErrMalformed   = errors.New("signaling: malformed envelope")
	ErrUnknownType = errors.New("signaling: unknown envelope type")
	ErrNotOutbound = errors.New("signaling: envelope kind cannot be sent")
)

// Envelope is the decoded form of every relay message. Only the fields
// relevant to Kind are set.
type Envelope struct {
	Kind        Kind
	PeerID      domain.PeerID
	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
	Message     string
}

func Offer(sdp string) Envelope {
	return Envelope{Kind: KindOffer, Description: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}}
}

func Answer(sdp string) Envelope {
	return Envelope{Kind: KindAnswer, Description: &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}}
}

func Candidate(c webrtc.ICECandidateInit) Envelope {
	return Envelope{Kind: KindCandidate, Candidate: &c}
}

func PeerArrived(id domain.PeerID) Envelope {
	return Envelope{Kind: KindPeerArrived, PeerID: id}
}

func PeerDeparted(id domain.PeerID) Envelope {
	return Envelope{Kind: KindPeerDeparted, PeerID: id}
}

// frame is the outer relay message.
type frame struct {
	Type    string          `json:"type"`
	PeerID  domain.PeerID   `json:"peer_id,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// signal is what peers exchange through the relay, unwrapped on send and
// nested under frame.Message on receive.
type signal struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func normalize(t string) string {
	switch strings.TrimSpace(t) {
	case "peer-arrived", "peer_arrived", string(KindPeerArrived):
		return string(KindPeerArrived)
	case "peer-departed", "peer_departed", string(KindPeerDeparted):
		return string(KindPeerDeparted)
	case "candidate", string(KindCandidate):
		return string(KindCandidate)
	default:
		return t
	}
}

// Decode parses one inbound relay payload.
func Decode(data []byte) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch normalize(f.Type) {
	case string(KindPeerArrived):
		return PeerArrived(f.PeerID), nil
	case string(KindPeerDeparted):
		return PeerDeparted(f.PeerID), nil
	case frameSignaling:
		if len(f.Message) == 0 {
			return Envelope{}, fmt.Errorf("%w: signaling frame without message", ErrMalformed)
		}
		env, err := decodeSignal(f.Message)
		if err != nil {
			return Envelope{}, err
		}
		env.PeerID = f.PeerID
		return env, nil
	case string(KindError):
		var msg string
		if len(f.Message) > 0 {
			if err := json.Unmarshal(f.Message, &msg); err != nil {
				msg = string(f.Message)
			}
		}
		return Envelope{Kind: KindError, Message: msg}, nil
	case "":
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

func decodeSignal(raw json.RawMessage) (Envelope, error) {
	var s signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch normalize(s.Type) {
	case string(KindOffer):
		if s.SDP == "" {
			return Envelope{}, fmt.Errorf("%w: offer without sdp", ErrMalformed)
		}
		return Offer(s.SDP), nil
	case string(KindAnswer):
		if s.SDP == "" {
			return Envelope{}, fmt.Errorf("%w: answer without sdp", ErrMalformed)
		}
		return Answer(s.SDP), nil
	case string(KindCandidate):
		if s.Candidate == nil {
			return Envelope{}, fmt.Errorf("%w: candidate without candidate", ErrMalformed)
		}
		return Candidate(*s.Candidate), nil
	default:
		return Envelope{}, fmt.Errorf("%w: signaling %q", ErrUnknownType, s.Type)
	}
}

// Encode serializes an outbound envelope. Only offer, answer and candidate
// may leave this side; the relay adds the signaling wrapper.
func Encode(env Envelope) ([]byte, error) {
	var s signal
	switch env.Kind {
	case KindOffer, KindAnswer:
		if env.Description == nil || env.Description.SDP == "" {
			return nil, fmt.Errorf("%w: %s without sdp", ErrMalformed, env.Kind)
		}
		s = signal{Type: string(env.Kind), SDP: env.Description.SDP}
	case KindCandidate:
		if env.Candidate == nil {
			return nil, fmt.Errorf("%w: candidate without candidate", ErrMalformed)
		}
		s = signal{Type: string(KindCandidate), Candidate: env.Candidate}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotOutbound, env.Kind)
	}
	return json.Marshal(s)
}

// RoomURL joins the signaling base URL with the room-scoped path.
func RoomURL(base string, code domain.RoomCode) string {
	return fmt.Sprintf("%s/room/%s/", strings.TrimRight(base, "/"), code)
}
