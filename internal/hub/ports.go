package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
)

// PortRegistry owns the set of connected surfaces. One entry per open port,
// never two with the same id.
type PortRegistry struct {
	mu    sync.RWMutex
	ports map[core.PortID]core.Port

	onAdd    func(p core.Port)
	onRemove func(id core.PortID)
}

func NewPortRegistry() *PortRegistry {
	return &PortRegistry{ports: make(map[core.PortID]core.Port)}
}

// SetHooks installs the router callbacks: onAdd delivers the ready
// acknowledgment and roster snapshot to a late joiner, onRemove lets the
// router unbind a conversation whose window closed.
func (r *PortRegistry) SetHooks(onAdd func(core.Port), onRemove func(id core.PortID)) {
	r.onAdd = onAdd
	r.onRemove = onRemove
}

// assignedPort wraps a port whose adapter did not pick an id.
type assignedPort struct {
	core.Port
	id core.PortID
}

func (p *assignedPort) ID() core.PortID { return p.id }

// Add registers a surface, assigning an id when the port has none.
// Adding an already-registered port is a no-op.
func (r *PortRegistry) Add(p core.Port) core.PortID {
	if p.ID() == "" {
		p = &assignedPort{Port: p, id: core.PortID(uuid.NewString())}
	}
	id := p.ID()

	r.mu.Lock()
	if _, ok := r.ports[id]; ok {
		r.mu.Unlock()
		return id
	}
	r.ports[id] = p
	n := len(r.ports)
	r.mu.Unlock()

	log.Info().Str("module", "hub.ports").Str("port", string(id)).Int("ports", n).Msg("port added")
	if r.onAdd != nil {
		r.onAdd(p)
	}
	return id
}

// Remove deregisters a surface. Unknown ids are ignored.
func (r *PortRegistry) Remove(id core.PortID) {
	r.mu.Lock()
	p, ok := r.ports[id]
	if ok {
		delete(r.ports, id)
	}
	n := len(r.ports)
	r.mu.Unlock()
	if !ok {
		return
	}

	p.Close()
	log.Info().Str("module", "hub.ports").Str("port", string(id)).Int("ports", n).Msg("port removed")
	if r.onRemove != nil {
		r.onRemove(id)
	}
}

func (r *PortRegistry) Get(id core.PortID) (core.Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.ports[id]
	return p, ok
}

func (r *PortRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

// Post broadcasts an event to every registered surface.
func (r *PortRegistry) Post(topic core.Topic, payload any) {
	r.mu.RLock()
	targets := make([]core.Port, 0, len(r.ports))
	for _, p := range r.ports {
		targets = append(targets, p)
	}
	r.mu.RUnlock()

	for _, p := range targets {
		if err := p.Post(topic, payload); err != nil {
			log.Warn().Err(err).Str("module", "hub.ports").Str("port", string(p.ID())).Str("topic", string(topic)).Msg("post failed")
		}
	}
}

// PostTo posts to a single surface. Unknown or closed ports are a no-op.
func (r *PortRegistry) PostTo(id core.PortID, topic core.Topic, payload any) {
	p, ok := r.Get(id)
	if !ok {
		return
	}
	if err := p.Post(topic, payload); err != nil {
		log.Warn().Err(err).Str("module", "hub.ports").Str("port", string(id)).Str("topic", string(topic)).Msg("post failed")
	}
}
