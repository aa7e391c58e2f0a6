package hub

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/spa"
)

// Internal topics used to serialize registry hooks and asynchronous
// provider work onto the event loop.
const (
	topicPortAdded       core.Topic = "_port-added"
	topicPortClosed      core.Topic = "_port-closed"
	topicSPAEnabled      core.Topic = "_spa-enabled"
	topicSPAEnableFailed core.Topic = "_spa-enable-failed"
)

// Router is the hub: it multiplexes messages between surfaces and providers,
// owns the presence store and the conversation table, and processes every
// event to completion on a single goroutine (Run).
type Router struct {
	ports     *PortRegistry
	providers *spa.Manager

	user   *domain.User
	roster *domain.Roster
	status *ReconnStatus

	convs       map[string]*Conversation
	convOrder   []string
	currentPeer string // single current-conversation slot; empty means none

	caps map[string][]core.Capability

	msgs   chan core.Message
	events chan core.ProviderEvent
	debug  bool
}

func NewRouter(providers *spa.Manager) *Router {
	r := &Router{
		ports:     NewPortRegistry(),
		providers: providers,
		user:      &domain.User{Presence: domain.PresenceDisconnected},
		roster:    domain.NewRoster(),
		status:    NewReconnStatus(),
		convs:     make(map[string]*Conversation),
		caps:      make(map[string][]core.Capability),
		msgs:      make(chan core.Message, 256),
		events:    make(chan core.ProviderEvent, 64),
	}
	r.ports.SetHooks(r.onPortAdded, r.onPortRemoved)
	return r
}

func (r *Router) Ports() *PortRegistry   { return r.ports }
func (r *Router) User() *domain.User     { return r.user }
func (r *Router) Roster() *domain.Roster { return r.roster }
func (r *Router) Status() *ReconnStatus  { return r.status }
func (r *Router) CurrentPeer() string    { return r.currentPeer }
func (r *Router) SetDebug(enabled bool)  { r.debug = enabled }

// Conversation looks up the active conversation for a peer.
func (r *Router) Conversation(peer string) (*Conversation, bool) {
	c, ok := r.convs[peer]
	return c, ok
}

// Deliver queues an inbound surface message for the event loop. A full
// inbox drops the message rather than blocking the transport.
func (r *Router) Deliver(msg core.Message) {
	select {
	case r.msgs <- msg:
	default:
		log.Warn().Str("module", "hub.router").Str("topic", string(msg.Topic)).Msg("inbox full, message dropped")
	}
}

// OnProviderEvent implements core.ProviderSink.
func (r *Router) OnProviderEvent(ev core.ProviderEvent) {
	select {
	case r.events <- ev:
	default:
		log.Warn().Str("module", "hub.router").Str("kind", ev.Kind.String()).Msg("event queue full, provider event dropped")
	}
}

// Run drains the inbox until ctx is cancelled. Every event is handled to
// completion before the next; this is the hub's single logical thread.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "hub.router").Msg("router stopped")
			return
		case msg := <-r.msgs:
			r.dispatch(msg)
		case ev := <-r.events:
			r.dispatchProvider(ev)
		}
	}
}

func (r *Router) onPortAdded(p core.Port) {
	r.Deliver(core.Message{Topic: topicPortAdded, From: p.ID()})
}

func (r *Router) onPortRemoved(id core.PortID) {
	r.Deliver(core.Message{Topic: topicPortClosed, From: id})
}

// dispatch routes one surface message. A panicking handler is contained
// here; a malformed message from one surface must not take the hub down.
func (r *Router) dispatch(msg core.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "hub.router").Str("topic", string(msg.Topic)).Any("panic", rec).Msg("handler panicked")
		}
	}()

	if r.debug && msg.Topic != core.TopicDebug {
		r.ports.Post(core.TopicDebug, msg)
	}

	switch msg.Topic {
	case core.TopicSidebarReady:
		r.handleSidebarReady(msg)
	case core.TopicChatWindowReady:
		r.handleChatWindowReady(msg)
	case core.TopicConversationOpen:
		r.handleConversationOpen(msg)
	case core.TopicCallOffer:
		r.handleCallOffer(msg)
	case core.TopicCallAnswer:
		r.handleCallAnswer(msg)
	case core.TopicCallHangup:
		r.handleCallHangup(msg)
	case core.TopicICECandidate:
		r.handleICECandidate(msg)
	case core.TopicSPAEnable:
		r.handleSPAEnable(msg)
	case core.TopicSPADisable:
		r.handleSPADisable(msg)
	case core.TopicSPAForgetCredentials:
		r.handleSPAForgetCredentials(msg)
	case core.TopicContacts:
		r.handleContacts(msg)
	case core.TopicSignoutRequested:
		r.handleSignout()
	case core.TopicDebug:
		log.Debug().Str("module", "hub.router").RawJSON("data", msg.Data).Msg("debug message")
	case topicPortAdded:
		r.welcomePort(msg.From)
	case topicPortClosed:
		r.portClosed(msg.From)
	case topicSPAEnabled:
		r.user.Presence = domain.PresenceConnecting
	case topicSPAEnableFailed:
		// The local user is left intact so the retry needs no new identity.
		r.ports.Post(core.TopicError, core.ErrorNotification{Message: "could not enable provider"})
	default:
		// Unknown topics are ignored for forward compatibility.
		log.Debug().Str("module", "hub.router").Str("topic", string(msg.Topic)).Msg("unhandled topic")
	}
}

// welcomePort brings a late-joining surface up to date: ready
// acknowledgment first, roster snapshot second.
func (r *Router) welcomePort(id core.PortID) {
	r.ports.PostTo(id, core.TopicWorkerReady, nil)
	r.ports.PostTo(id, core.TopicUsers, r.usersSnapshot())
}

func (r *Router) usersSnapshot() []domain.User {
	return r.roster.Snapshot(r.status.Degraded())
}

func (r *Router) handleSidebarReady(msg core.Message) {
	r.ports.PostTo(msg.From, core.TopicWorkerReady, nil)
	r.ports.PostTo(msg.From, core.TopicUsers, r.usersSnapshot())
}

func (r *Router) handleChatWindowReady(msg core.Message) {
	port, ok := r.ports.Get(msg.From)
	if !ok {
		return
	}

	var ref core.PeerRef
	_ = msg.Decode(&ref) // payload is optional

	conv := r.pickWindowConversation(ref.Peer)
	if conv == nil {
		log.Warn().Str("module", "hub.router").Str("port", string(msg.From)).Msg("window ready with no conversation to bind")
		return
	}
	if conv.BindWindow(port) {
		r.currentPeer = conv.Peer()
	}
}

// pickWindowConversation selects the conversation a new window should bind:
// the named peer if given, otherwise the most recently created unbound one.
func (r *Router) pickWindowConversation(peer string) *Conversation {
	if peer != "" {
		if c, ok := r.convs[peer]; ok && !c.Ended() && !c.WindowBound() {
			return c
		}
		return nil
	}
	for i := len(r.convOrder) - 1; i >= 0; i-- {
		if c, ok := r.convs[r.convOrder[i]]; ok && !c.Ended() && !c.WindowBound() {
			return c
		}
	}
	return nil
}

func (r *Router) handleConversationOpen(msg core.Message) {
	var ref core.PeerRef
	if err := msg.Decode(&ref); err != nil || ref.Peer == "" {
		log.Warn().Str("module", "hub.router").Msg("conversation-open without peer")
		return
	}
	p, src, _ := r.providers.Default()
	r.openConversation(ref.Peer, p, src)
}

func (r *Router) handleCallOffer(msg core.Message) {
	var o core.Offer
	if err := msg.Decode(&o); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad call-offer")
		return
	}
	if err := o.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad call-offer")
		return
	}

	if c, ok := r.convs[o.Peer]; !ok || c.Ended() {
		r.trackConversation(NewOutgoingConversation(o.Peer))
	}

	p, _, ok := r.providers.Default()
	if !ok {
		log.Warn().Str("module", "hub.router").Str("peer", o.Peer).Msg("call-offer with no enabled provider")
		return
	}
	if err := p.Offer(o); err != nil {
		log.Error().Err(err).Str("module", "hub.router").Str("peer", o.Peer).Msg("send offer")
	}
}

func (r *Router) handleCallAnswer(msg core.Message) {
	var a core.Answer
	if err := msg.Decode(&a); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad call-answer")
		return
	}
	if err := a.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad call-answer")
		return
	}

	conv, ok := r.convs[a.Peer]
	if !ok || conv.Ended() {
		log.Warn().Str("module", "hub.router").Str("peer", a.Peer).Msg("answer for unknown conversation")
		return
	}
	conv.AnswerSent()

	p, _, ok := r.providers.Default()
	if !ok {
		return
	}
	if err := p.Answer(a); err != nil {
		log.Error().Err(err).Str("module", "hub.router").Str("peer", a.Peer).Msg("send answer")
	}
}

func (r *Router) handleCallHangup(msg core.Message) {
	var h core.Hangup
	if err := msg.Decode(&h); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad call-hangup")
		return
	}
	if err := h.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad call-hangup")
		return
	}

	if p, _, ok := r.providers.Default(); ok {
		if err := p.Hangup(h); err != nil {
			log.Error().Err(err).Str("module", "hub.router").Str("peer", h.Peer).Msg("send hangup")
		}
	}
	r.endConversation(h.Peer)
}

func (r *Router) handleICECandidate(msg core.Message) {
	var c core.IceCandidate
	if err := msg.Decode(&c); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad ice-candidate")
		return
	}
	if err := c.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad ice-candidate")
		return
	}

	p, _, ok := r.providers.Default()
	if !ok {
		log.Warn().Str("module", "hub.router").Str("peer", c.Peer).Msg("ice-candidate with no enabled provider")
		return
	}
	if err := p.IceCandidate(c); err != nil {
		log.Error().Err(err).Str("module", "hub.router").Str("peer", c.Peer).Msg("send ice candidate")
	}
}

func (r *Router) handleSPAEnable(msg core.Message) {
	var en core.SPAEnable
	if err := msg.Decode(&en); err != nil || en.Src == "" {
		log.Warn().Str("module", "hub.router").Msg("spa-enable without src")
		return
	}
	// Connect dials the network; it must not run on the event loop.
	go r.enableProvider(en)
}

// enableProvider instantiates and connects the backend off the event loop,
// then reports the outcome back through the inbox so state changes stay on
// Run's goroutine.
func (r *Router) enableProvider(en core.SPAEnable) {
	if _, err := r.providers.Enable(en.Src, en.Credentials, r); err != nil {
		log.Error().Err(err).Str("module", "hub.router").Str("src", en.Src).Msg("provider enable failed")
		r.Deliver(core.Message{Topic: topicSPAEnableFailed})
		return
	}
	r.Deliver(core.Message{Topic: topicSPAEnabled})
}

func (r *Router) handleSPADisable(msg core.Message) {
	var sel core.SPASelect
	if err := msg.Decode(&sel); err != nil || sel.Src == "" {
		log.Warn().Str("module", "hub.router").Msg("spa-disable without src")
		return
	}
	r.providers.Disable(sel.Src)
	delete(r.caps, sel.Src)
}

func (r *Router) handleSPAForgetCredentials(msg core.Message) {
	var sel core.SPASelect
	if err := msg.Decode(&sel); err != nil || sel.Src == "" {
		log.Warn().Str("module", "hub.router").Msg("spa-forget-credentials without src")
		return
	}
	r.providers.ForgetCredentials(sel.Src)
}

func (r *Router) handleContacts(msg core.Message) {
	var cts core.Contacts
	if err := msg.Decode(&cts); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Msg("bad contacts")
		return
	}
	r.roster.UpsertAll(cts.Contacts)
	log.Info().Str("module", "hub.router").Str("source", cts.Source).Int("roster", r.roster.Len()).Msg("contacts imported")
	r.ports.Post(core.TopicUsers, r.usersSnapshot())
}

// handleSignout clears all state: identity, roster, every enabled provider
// and every conversation.
func (r *Router) handleSignout() {
	r.user.Reset()
	r.roster.Reset()

	n := r.providers.DisableAll()
	r.caps = make(map[string][]core.Capability)

	for _, c := range r.convs {
		c.End()
	}
	r.convs = make(map[string]*Conversation)
	r.convOrder = nil
	r.currentPeer = ""
	r.status.Reset()

	log.Info().Str("module", "hub.router").Int("providers", n).Msg("signed out")
	r.ports.Post(core.TopicUsers, r.usersSnapshot())
}
