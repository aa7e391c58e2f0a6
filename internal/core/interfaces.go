package core

import "encoding/json"

// PortID is an opaque per-channel identifier assigned by the registry.
type PortID string

// Port is one connected front-end surface (the roster sidebar or a call
// window). Owned by the adapter; the adapter must Close() it.
type Port interface {
	ID() PortID
	// Post serializes payload and queues it for this surface only.
	// Posting to a closed port is not an error.
	Post(topic Topic, payload any) error
	Close()
}

// Capability names one operation a provider advertises (e.g. "call",
// "dial", "move").
type Capability = string

// Provider is one configured signaling/presence backend (SPA). Concrete
// backends are selected by the scheme of their source locator; the hub only
// sees this capability set.
type Provider interface {
	Connect(credentials json.RawMessage) error
	Disconnect() error
	ForgetCredentials() error

	Dial(number string) error
	Offer(o Offer) error
	Answer(a Answer) error
	Hangup(h Hangup) error
	IceCandidate(c IceCandidate) error
}

// ProviderEventKind tags the ProviderEvent union.
type ProviderEventKind int

const (
	ProviderConnected ProviderEventKind = iota
	ProviderDisconnected
	ProviderReconnecting
	ProviderMessage
	ProviderUserProfile
	ProviderDial
)

func (k ProviderEventKind) String() string {
	switch k {
	case ProviderConnected:
		return "connected"
	case ProviderDisconnected:
		return "disconnected"
	case ProviderReconnecting:
		return "reconnecting"
	case ProviderMessage:
		return "message"
	case ProviderUserProfile:
		return "user-profile"
	case ProviderDial:
		return "dial"
	default:
		return "unknown"
	}
}

// ProviderEvent is everything a backend can report to the hub. Only the
// fields relevant to Kind are set.
type ProviderEvent struct {
	Kind ProviderEventKind
	Src  string

	Capabilities []Capability    // connected
	Reconnection Reconnection    // reconnecting
	Topic        Topic           // message
	Data         json.RawMessage // message
	Profile      UserProfile     // user-profile
	Number       string          // dial
}

// ProviderSink receives provider events; the router implements it. Delivery
// must not block the backend's read loop.
type ProviderSink interface {
	OnProviderEvent(ev ProviderEvent)
}
