package spa

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
)

func init() {
	Register("ws", newWSProvider)
	Register("wss", newWSProvider)
}

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("provider not connected")
)

// wsProvider speaks JSON frames {"type": ..., "data": ...} over an outbound
// WebSocket to a signaling server. Reconnection backoff is the server's
// business; this side only reflects what it is told.
type wsProvider struct {
	src  string
	sink core.ProviderSink

	mu     sync.Mutex
	conn   *websocket.Conn
	send   chan []byte
	closed bool
}

func newWSProvider(src string, sink core.ProviderSink) (core.Provider, error) {
	return &wsProvider{src: src, sink: sink}, nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (p *wsProvider) Connect(credentials json.RawMessage) error {
	conn, _, err := websocket.DefaultDialer.Dial(p.src, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.src, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.send = make(chan []byte, 32)
	p.closed = false
	p.mu.Unlock()

	go p.writePump()
	go p.readLoop()

	return p.sendFrame("connect", credentials)
}

func (p *wsProvider) Disconnect() error {
	p.mu.Lock()
	if p.closed || p.conn == nil {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.send)
	conn := p.conn
	p.mu.Unlock()
	return conn.Close()
}

func (p *wsProvider) ForgetCredentials() error {
	// Best effort: a disconnected backend has nothing to forget.
	if err := p.sendFrame("forget-credentials", nil); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

func (p *wsProvider) Dial(number string) error {
	return p.sendJSON("dial", struct {
		Number string `json:"number"`
	}{number})
}

func (p *wsProvider) Offer(o core.Offer) error   { return p.sendJSON("offer", o) }
func (p *wsProvider) Answer(a core.Answer) error { return p.sendJSON("answer", a) }
func (p *wsProvider) Hangup(h core.Hangup) error { return p.sendJSON("hangup", h) }
func (p *wsProvider) IceCandidate(c core.IceCandidate) error {
	return p.sendJSON("ice-candidate", c)
}

func (p *wsProvider) sendJSON(typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.sendFrame(typ, data)
}

func (p *wsProvider) sendFrame(typ string, data json.RawMessage) error {
	b, err := json.Marshal(frame{Type: typ, Data: data})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.conn == nil {
		return ErrNotConnected
	}
	select {
	case p.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (p *wsProvider) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *wsProvider) writePump() {
	for data := range p.send {
		if err := p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "spa.ws").Msg("writePump set deadline")
			return
		}
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "spa.ws").Msg("writePump write error")
			return
		}
	}
}

func (p *wsProvider) readLoop() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if !p.isClosed() {
				log.Error().Err(err).Str("module", "spa.ws").Str("src", p.src).Msg("read error")
				p.emit(core.ProviderEvent{Kind: core.ProviderDisconnected})
			}
			return
		}
		p.handleFrame(data)
	}
}

func (p *wsProvider) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Error().Err(err).Str("module", "spa.ws").Msg("bad json")
		return
	}

	switch f.Type {
	case "connected":
		var c core.SPAConnected
		_ = json.Unmarshal(f.Data, &c)
		p.emit(core.ProviderEvent{Kind: core.ProviderConnected, Capabilities: c.Capabilities})
	case "disconnected":
		p.emit(core.ProviderEvent{Kind: core.ProviderDisconnected})
	case "reconnecting":
		var r core.Reconnection
		if err := json.Unmarshal(f.Data, &r); err != nil {
			log.Error().Err(err).Str("module", "spa.ws").Msg("bad reconnecting payload")
			return
		}
		p.emit(core.ProviderEvent{Kind: core.ProviderReconnecting, Reconnection: r})
	case "user-profile":
		var up core.UserProfile
		if err := json.Unmarshal(f.Data, &up); err != nil {
			log.Error().Err(err).Str("module", "spa.ws").Msg("bad user-profile payload")
			return
		}
		p.emit(core.ProviderEvent{Kind: core.ProviderUserProfile, Profile: up})
	case "dial":
		var d struct {
			Number string `json:"number"`
		}
		if err := json.Unmarshal(f.Data, &d); err != nil {
			log.Error().Err(err).Str("module", "spa.ws").Msg("bad dial payload")
			return
		}
		p.emit(core.ProviderEvent{Kind: core.ProviderDial, Number: d.Number})
	default:
		// Everything else is an application message routed by topic.
		p.emit(core.ProviderEvent{Kind: core.ProviderMessage, Topic: core.Topic(f.Type), Data: f.Data})
	}
}

func (p *wsProvider) emit(ev core.ProviderEvent) {
	ev.Src = p.src
	p.sink.OnProviderEvent(ev)
}
