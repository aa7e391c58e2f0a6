package core

import (
	"encoding/json"
	"errors"
)

var (
	ErrNoTopic    = errors.New("message without topic")
	ErrNoPayload  = errors.New("message without payload")
	ErrBadPayload = errors.New("malformed payload")
)

// Topic names one event kind on the port or provider boundary. The set is
// closed: the router switches over it exhaustively and ignores anything else.
type Topic string

// Inbound, from surfaces.
const (
	TopicSidebarReady         Topic = "sidebar-ready"
	TopicChatWindowReady      Topic = "chat-window-ready"
	TopicConversationOpen     Topic = "conversation-open"
	TopicCallOffer            Topic = "call-offer"
	TopicCallAnswer           Topic = "call-answer"
	TopicCallHangup           Topic = "call-hangup"
	TopicICECandidate         Topic = "ice-candidate"
	TopicSPAEnable            Topic = "spa-enable"
	TopicSPADisable           Topic = "spa-disable"
	TopicSPAForgetCredentials Topic = "spa-forget-credentials"
	TopicContacts             Topic = "contacts"
	TopicSignoutRequested     Topic = "signout-requested"
	TopicDebug                Topic = "debug"
)

// Outbound, to surfaces.
const (
	TopicWorkerReady          Topic = "worker-ready"
	TopicUsers                Topic = "users"
	TopicUserJoined           Topic = "user-joined"
	TopicUserLeft             Topic = "user-left"
	TopicUserProfile          Topic = "user-profile"
	TopicSPAConnected         Topic = "spa-connected"
	TopicServerReconnection   Topic = "server-reconnection"
	TopicConversationIncoming Topic = "conversation-incoming"
	TopicError                Topic = "error"
)

// Message is the wire envelope on every port: {"topic": ..., "data": ...}.
// Data is kept raw; signaling payloads round-trip through the hub untouched.
type Message struct {
	Topic Topic           `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`

	// From identifies the port the message arrived on. Empty for messages
	// synthesized from provider events.
	From PortID `json:"-"`
}

func ParseMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if m.Topic == "" {
		return Message{}, ErrNoTopic
	}
	return m, nil
}

// Decode unmarshals the payload into v. A message with no payload at all is
// reported as ErrNoPayload so handlers can drop it in one place.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return ErrNoPayload
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return ErrBadPayload
	}
	return nil
}
