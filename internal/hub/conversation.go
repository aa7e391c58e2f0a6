package hub

import (
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
)

// ConvState is the signaling phase of one call.
type ConvState string

const (
	ConvInitiating      ConvState = "initiating"
	ConvPendingIncoming ConvState = "pending-incoming"
	ConvNegotiating     ConvState = "negotiating"
	ConvActive          ConvState = "active"
	ConvEnded           ConvState = "ended"
)

type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// bufferCapacity bounds the queue of signaling payloads waiting for a
// window. Overflow drops the oldest entry.
const bufferCapacity = 32

type bufferedEvent struct {
	topic   core.Topic
	payload any
}

// Conversation is the per-call signaling state machine. It owns the dialogue
// with one peer and the association to at most one call-window port.
// All mutation happens on the router's event loop.
type Conversation struct {
	peer   string
	role   Role
	state  ConvState
	window core.Port
	buffer []bufferedEvent
}

// NewOutgoingConversation starts a locally-initiated call.
func NewOutgoingConversation(peer string) *Conversation {
	return &Conversation{peer: peer, role: RoleCaller, state: ConvInitiating}
}

// NewIncomingConversation starts a call from a remote offer. No window
// exists yet; the offer is buffered until one binds.
func NewIncomingConversation(peer string, offer any) *Conversation {
	c := &Conversation{peer: peer, role: RoleCallee, state: ConvPendingIncoming}
	c.Deliver(core.TopicCallOffer, offer)
	return c
}

func (c *Conversation) Peer() string      { return c.peer }
func (c *Conversation) Role() Role        { return c.role }
func (c *Conversation) State() ConvState  { return c.state }
func (c *Conversation) Ended() bool       { return c.state == ConvEnded }
func (c *Conversation) WindowBound() bool { return c.window != nil }

// WindowID reports the bound window port, if any.
func (c *Conversation) WindowID() (core.PortID, bool) {
	if c.window == nil {
		return "", false
	}
	return c.window.ID(), true
}

// BindWindow attaches a call-window surface and flushes every buffered
// payload to it in arrival order. A second bind attempt is rejected.
func (c *Conversation) BindWindow(p core.Port) bool {
	if c.state == ConvEnded {
		return false
	}
	if c.window != nil {
		log.Warn().Str("module", "hub.conversation").Str("peer", c.peer).Msg("window already bound")
		return false
	}
	c.window = p
	c.state = ConvNegotiating

	for _, ev := range c.buffer {
		if err := p.Post(ev.topic, ev.payload); err != nil {
			log.Warn().Err(err).Str("module", "hub.conversation").Str("peer", c.peer).Str("topic", string(ev.topic)).Msg("flush failed")
		}
	}
	c.buffer = nil
	return true
}

// Deliver hands a signaling payload to the bound window, or buffers it until
// one binds. The buffer is bounded; the oldest entry is dropped on overflow.
func (c *Conversation) Deliver(topic core.Topic, payload any) {
	if c.state == ConvEnded {
		return
	}
	if c.window != nil {
		if err := c.window.Post(topic, payload); err != nil {
			log.Warn().Err(err).Str("module", "hub.conversation").Str("peer", c.peer).Str("topic", string(topic)).Msg("deliver failed")
		}
		return
	}
	if len(c.buffer) >= bufferCapacity {
		dropped := c.buffer[0]
		c.buffer = c.buffer[1:]
		log.Warn().Str("module", "hub.conversation").Str("peer", c.peer).Str("topic", string(dropped.topic)).Msg("signaling buffer full, dropped oldest")
	}
	c.buffer = append(c.buffer, bufferedEvent{topic: topic, payload: payload})
}

// AnswerReceived moves the call to active and forwards the answer.
func (c *Conversation) AnswerReceived(a core.Answer) {
	switch c.state {
	case ConvInitiating, ConvNegotiating:
		c.state = ConvActive
	case ConvEnded:
		return
	}
	c.Deliver(core.TopicCallAnswer, a)
}

// AnswerSent records the local side accepting the call.
func (c *Conversation) AnswerSent() {
	switch c.state {
	case ConvPendingIncoming, ConvNegotiating:
		c.state = ConvActive
	}
}

// End terminates the dialogue (hangup sent or received) and unbinds the
// window.
func (c *Conversation) End() {
	c.state = ConvEnded
	c.window = nil
	c.buffer = nil
}

// WindowClosed handles the owning port going away: an implicit hangup.
// It reports whether the peer should be notified, which is only the case
// once negotiation reached active (never advertise a call that never
// connected).
func (c *Conversation) WindowClosed() bool {
	wasActive := c.state == ConvActive
	c.End()
	return wasActive
}
