// Package ports turns accepted WebSocket connections into hub ports. One
// socket per surface: the roster sidebar and every open call window.
package ports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/hub"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Router     *hub.Router
	ReadLimit  int64
	PingPeriod time.Duration

	// Limiter, when set, throttles inbound messages per port.
	Limiter *PortRateLimiter
}

// wsPort implements core.Port over one WebSocket.
type wsPort struct {
	id   core.PortID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (p *wsPort) ID() core.PortID { return p.id }

func (p *wsPort) Post(topic core.Topic, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}
	b, err := json.Marshal(core.Message{Topic: topic, Data: data})
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		// Posting to a closed port is a no-op, not an error.
		return nil
	}
	select {
	case p.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (p *wsPort) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.send)
	_ = p.conn.Close()
	p.mu.Unlock()
}

// HandlePort upgrades the request and registers the surface with the hub.
func (ctl *Controller) HandlePort(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ports").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	port := &wsPort{
		id:   core.PortID(uuid.NewString()),
		conn: ws,
		send: make(chan []byte, 32),
	}
	log.Info().Str("module", "adapters.ports").Str("port", string(port.id)).Msg("surface connected")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, port)
	go ctl.readPump(ctx, cancel, port)

	ctl.Router.Ports().Add(port)
}

func (ctl *Controller) writePump(ctx context.Context, p *wsPort) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-p.send:
			if !ok {
				return
			}
			if err := p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ports").Msg("writePump set deadline")
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ports").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, p *wsPort) {
	defer func() {
		log.Info().Str("module", "adapters.ports").Str("port", string(p.id)).Msg("surface disconnected")
		ctl.Router.Ports().Remove(p.id)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(p.id)
		}
		cancel()
		p.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := p.conn.ReadMessage()
			if err != nil {
				return
			}
			if ctl.Limiter != nil && !ctl.Limiter.Allow(p.id) {
				log.Warn().Str("module", "adapters.ports").Str("port", string(p.id)).Msg("rate limit exceeded, message dropped")
				continue
			}
			msg, err := core.ParseMessage(data)
			if err != nil {
				log.Warn().Err(err).Str("module", "adapters.ports").Str("port", string(p.id)).Msg("bad message")
				continue
			}
			msg.From = p.id
			ctl.Router.Deliver(msg)
		}
	}
}
