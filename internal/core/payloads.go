package core

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/parleyhq/parley/internal/domain"
)

var (
	ErrNoPeer  = errors.New("payload without peer")
	ErrNoOffer = errors.New("offer payload without session description")
)

// Signaling payloads. The hub checks presence and shape only; sdp and
// candidate bodies are opaque and must survive a JSON round trip.

type Offer struct {
	Peer  string                    `json:"peer"`
	Offer webrtc.SessionDescription `json:"offer"`
}

func (o Offer) Validate() error {
	if o.Peer == "" {
		return ErrNoPeer
	}
	if o.Offer.SDP == "" {
		return ErrNoOffer
	}
	return nil
}

type Answer struct {
	Peer   string          `json:"peer"`
	Answer json.RawMessage `json:"answer"`
}

func (a Answer) Validate() error {
	if a.Peer == "" {
		return ErrNoPeer
	}
	return nil
}

type Hangup struct {
	Peer string `json:"peer"`
}

func (h Hangup) Validate() error {
	if h.Peer == "" {
		return ErrNoPeer
	}
	return nil
}

type IceCandidate struct {
	Peer      string                  `json:"peer"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (c IceCandidate) Validate() error {
	if c.Peer == "" {
		return ErrNoPeer
	}
	return nil
}

// Reconnection carries backend-driven retry metadata. The hub reflects it,
// it never computes its own backoff.
type Reconnection struct {
	Timeout int `json:"timeout"`
	Attempt int `json:"attempt"`
}

// UserProfile is the identity blob a provider advertises for the local user.
type UserProfile struct {
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName,omitempty"`
	IconURL     string `json:"iconURL,omitempty"`
	Portrait    string `json:"portrait,omitempty"`
	ProfileURL  string `json:"profileURL,omitempty"`
}

// Contacts is a roster import from an external address-book source.
type Contacts struct {
	Contacts []domain.User `json:"contacts"`
	Source   string        `json:"source,omitempty"`
}

type SPAEnable struct {
	Src         string          `json:"src"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
}

// SPASelect names an already-configured provider (disable, forget).
type SPASelect struct {
	Src string `json:"src"`
}

type SPAConnected struct {
	Capabilities []string `json:"capabilities,omitempty"`
}

// PeerRef names a peer without any signaling body (conversation-open,
// conversation-incoming, chat-window-ready with an explicit peer).
type PeerRef struct {
	Peer string `json:"peer,omitempty"`
}

type ErrorNotification struct {
	Message string `json:"message"`
}
