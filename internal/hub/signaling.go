package hub

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/domain"
)

// dispatchProvider routes one provider event, with the same containment
// guarantee as dispatch: a bad backend cannot crash the hub.
func (r *Router) dispatchProvider(ev core.ProviderEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "hub.router").Str("kind", ev.Kind.String()).Any("panic", rec).Msg("provider handler panicked")
		}
	}()

	switch ev.Kind {
	case core.ProviderConnected:
		r.caps[ev.Src] = ev.Capabilities
		r.status.OnConnected()
		r.user.Presence = domain.PresenceConnected
		r.ports.Post(core.TopicSPAConnected, core.SPAConnected{Capabilities: ev.Capabilities})
		r.ports.Post(core.TopicUsers, r.usersSnapshot())

	case core.ProviderDisconnected:
		r.status.OnDisconnected()
		r.user.Presence = domain.PresenceDisconnected
		r.ports.Post(core.TopicUsers, r.usersSnapshot())

	case core.ProviderReconnecting:
		r.status.OnReconnecting(ev.Reconnection)
		r.user.Presence = domain.PresenceConnecting
		r.ports.Post(core.TopicServerReconnection, ev.Reconnection)
		r.ports.Post(core.TopicUsers, r.usersSnapshot())

	case core.ProviderMessage:
		r.handleProviderMessage(ev)

	case core.ProviderUserProfile:
		if u, err := domain.NewUser(ev.Profile.UserName); err == nil {
			u.DisplayName = ev.Profile.DisplayName
			u.Presence = r.user.Presence
			r.user = u
		} else if ev.Profile.UserName != "" {
			log.Warn().Err(err).Str("module", "hub.router").Msg("rejected user profile")
			return
		}
		r.ports.Post(core.TopicUserProfile, ev.Profile)

	case core.ProviderDial:
		p, _ := r.providers.Get(ev.Src)
		r.openConversation(ev.Number, p, ev.Src)
	}
}

// handleProviderMessage routes signaling and presence messages relayed by
// the backend. Strays for unknown peers are dropped; no conversation
// materializes from an answer or candidate.
func (r *Router) handleProviderMessage(ev core.ProviderEvent) {
	switch ev.Topic {
	case core.TopicCallOffer:
		var o core.Offer
		if err := json.Unmarshal(ev.Data, &o); err != nil {
			log.Warn().Err(err).Str("module", "hub.signaling").Msg("bad remote offer")
			return
		}
		if err := o.Validate(); err != nil {
			log.Warn().Err(err).Str("module", "hub.signaling").Msg("bad remote offer")
			return
		}
		if c, ok := r.convs[o.Peer]; ok && !c.Ended() {
			log.Warn().Str("module", "hub.signaling").Str("peer", o.Peer).Msg("offer for peer with active conversation, rejected")
			return
		}
		r.trackConversation(NewIncomingConversation(o.Peer, o))
		r.ports.Post(core.TopicConversationIncoming, core.PeerRef{Peer: o.Peer})

	case core.TopicCallAnswer:
		var a core.Answer
		if err := json.Unmarshal(ev.Data, &a); err != nil || a.Validate() != nil {
			log.Warn().Str("module", "hub.signaling").Msg("bad remote answer")
			return
		}
		conv, ok := r.convs[a.Peer]
		if !ok || conv.Ended() {
			log.Warn().Str("module", "hub.signaling").Str("peer", a.Peer).Msg("answer with no matching conversation")
			return
		}
		conv.AnswerReceived(a)

	case core.TopicICECandidate:
		var c core.IceCandidate
		if err := json.Unmarshal(ev.Data, &c); err != nil || c.Validate() != nil {
			log.Warn().Str("module", "hub.signaling").Msg("bad remote ice candidate")
			return
		}
		conv, ok := r.convs[c.Peer]
		if !ok || conv.Ended() {
			log.Warn().Str("module", "hub.signaling").Str("peer", c.Peer).Msg("candidate with no matching conversation")
			return
		}
		conv.Deliver(core.TopicICECandidate, c)

	case core.TopicCallHangup:
		var h core.Hangup
		if err := json.Unmarshal(ev.Data, &h); err != nil || h.Validate() != nil {
			log.Warn().Str("module", "hub.signaling").Msg("bad remote hangup")
			return
		}
		conv, ok := r.convs[h.Peer]
		if !ok {
			return
		}
		conv.Deliver(core.TopicCallHangup, h)
		r.endConversation(h.Peer)

	case core.TopicUserJoined:
		var username string
		if err := json.Unmarshal(ev.Data, &username); err != nil || username == "" {
			log.Warn().Str("module", "hub.signaling").Msg("bad user-joined")
			return
		}
		r.roster.Join(username)
		r.ports.Post(core.TopicUserJoined, username)

	case core.TopicUserLeft:
		var username string
		if err := json.Unmarshal(ev.Data, &username); err != nil || username == "" {
			log.Warn().Str("module", "hub.signaling").Msg("bad user-left")
			return
		}
		r.roster.Leave(username)
		r.ports.Post(core.TopicUserLeft, username)

	case core.TopicUsers:
		var online []domain.User
		if err := json.Unmarshal(ev.Data, &online); err != nil {
			log.Warn().Err(err).Str("module", "hub.signaling").Msg("bad users list")
			return
		}
		for _, u := range online {
			if u.Username != "" {
				r.roster.Join(u.Username)
			}
		}
		r.ports.Post(core.TopicUsers, r.usersSnapshot())

	default:
		log.Debug().Str("module", "hub.signaling").Str("topic", string(ev.Topic)).Msg("unhandled provider message")
	}
}

// openConversation starts a locally-initiated call. A second call to a peer
// with one already active is rejected. When the provider advertises the
// dial capability the outbound offer is placed through it right away.
func (r *Router) openConversation(peer string, p core.Provider, src string) {
	if peer == "" {
		return
	}
	if c, ok := r.convs[peer]; ok && !c.Ended() {
		log.Warn().Str("module", "hub.signaling").Str("peer", peer).Msg("conversation already active, open rejected")
		return
	}

	r.trackConversation(NewOutgoingConversation(peer))
	log.Info().Str("module", "hub.signaling").Str("peer", peer).Msg("conversation opened")
	r.ports.Post(core.TopicConversationOpen, core.PeerRef{Peer: peer})

	if p != nil && r.hasCapability(src, "dial") {
		if err := p.Dial(peer); err != nil {
			log.Error().Err(err).Str("module", "hub.signaling").Str("peer", peer).Msg("dial")
		}
	}
}

func (r *Router) trackConversation(c *Conversation) {
	peer := c.Peer()
	if _, ok := r.convs[peer]; !ok {
		r.convOrder = append(r.convOrder, peer)
	}
	r.convs[peer] = c
	if c.Role() == RoleCaller {
		// Starting a call claims the current-conversation slot; an incoming
		// one only does so once a window binds.
		r.currentPeer = peer
	}
}

// endConversation tears down the dialogue with peer and frees the
// current-conversation slot when it held it.
func (r *Router) endConversation(peer string) {
	c, ok := r.convs[peer]
	if !ok {
		return
	}
	c.End()
	r.dropConversation(peer)
}

func (r *Router) dropConversation(peer string) {
	delete(r.convs, peer)
	r.convOrder = lo.Without(r.convOrder, peer)
	if r.currentPeer == peer {
		r.currentPeer = ""
	}
}

// portClosed handles a removed port. If it was a conversation's bound
// window, that is an implicit hangup; the peer is only told when the call
// had actually connected.
func (r *Router) portClosed(id core.PortID) {
	for peer, c := range r.convs {
		wid, bound := c.WindowID()
		if !bound || wid != id {
			continue
		}
		notifyPeer := c.WindowClosed()
		r.dropConversation(peer)
		log.Info().Str("module", "hub.signaling").Str("peer", peer).Bool("notify", notifyPeer).Msg("window closed, conversation ended")

		if notifyPeer {
			if p, _, ok := r.providers.Default(); ok {
				if err := p.Hangup(core.Hangup{Peer: peer}); err != nil {
					log.Error().Err(err).Str("module", "hub.signaling").Str("peer", peer).Msg("send hangup")
				}
			}
		}
		return
	}
}

func (r *Router) hasCapability(src string, capability core.Capability) bool {
	return lo.Contains(r.caps[src], capability)
}
