package hub

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/spa"
)

func sdpOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
}

type postRecord struct {
	topic   core.Topic
	payload any
}

type fakePort struct {
	id     core.PortID
	posts  []postRecord
	closed bool
}

func (p *fakePort) ID() core.PortID { return p.id }

func (p *fakePort) Post(topic core.Topic, payload any) error {
	p.posts = append(p.posts, postRecord{topic: topic, payload: payload})
	return nil
}

func (p *fakePort) Close() { p.closed = true }

func (p *fakePort) topics() []core.Topic {
	out := make([]core.Topic, len(p.posts))
	for i, rec := range p.posts {
		out[i] = rec.topic
	}
	return out
}

type fakeProvider struct {
	sink        core.ProviderSink
	connectErr  error
	connectGate chan struct{}

	connects    int
	disconnects int
	forgets     int
	dialed      []string
	offers      []core.Offer
	answers     []core.Answer
	hangups     []core.Hangup
	candidates  []core.IceCandidate
}

func (p *fakeProvider) Connect(_ json.RawMessage) error {
	if p.connectGate != nil {
		<-p.connectGate
	}
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connects++
	return nil
}

func (p *fakeProvider) Disconnect() error        { p.disconnects++; return nil }
func (p *fakeProvider) ForgetCredentials() error { p.forgets++; return nil }

func (p *fakeProvider) Dial(number string) error {
	p.dialed = append(p.dialed, number)
	return nil
}

func (p *fakeProvider) Offer(o core.Offer) error   { p.offers = append(p.offers, o); return nil }
func (p *fakeProvider) Answer(a core.Answer) error { p.answers = append(p.answers, a); return nil }
func (p *fakeProvider) Hangup(h core.Hangup) error { p.hangups = append(p.hangups, h); return nil }
func (p *fakeProvider) IceCandidate(c core.IceCandidate) error {
	p.candidates = append(p.candidates, c)
	return nil
}

// nextFake is handed out by the "fake" scheme factory on the next enable.
var nextFake *fakeProvider

func init() {
	spa.Register("fake", func(_ string, sink core.ProviderSink) (core.Provider, error) {
		if nextFake == nil {
			return nil, errors.New("no fake provider staged")
		}
		p := nextFake
		nextFake = nil
		p.sink = sink
		return p, nil
	})
}

// enableFake stages and enables a fake provider through the enable path,
// run inline so tests stay deterministic.
func enableFake(r *Router, src string) *fakeProvider {
	p := &fakeProvider{}
	nextFake = p
	r.enableProvider(core.SPAEnable{Src: src})
	r.pump()
	return p
}

// pump synchronously drains everything the router has queued, the test
// stand-in for Run.
func (r *Router) pump() {
	for {
		select {
		case msg := <-r.msgs:
			r.dispatch(msg)
		case ev := <-r.events:
			r.dispatchProvider(ev)
		default:
			return
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func portMsg(from core.PortID, topic core.Topic, payload any) core.Message {
	msg := core.Message{Topic: topic, From: from}
	if payload != nil {
		msg.Data = mustJSON(payload)
	}
	return msg
}
