// Package spa manages signaling-provider adapters. Concrete backends
// register a factory for their source-locator scheme; the hub enables at
// most one instance per configured source.
package spa

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
)

var (
	ErrUnknownScheme = errors.New("no provider registered for scheme")
	ErrBadSource     = errors.New("invalid provider source locator")
)

// Factory builds a provider for a source locator. Events go to sink.
type Factory func(src string, sink core.ProviderSink) (core.Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend available under a source-locator scheme.
// Called from backend init functions, like database/sql drivers.
func Register(scheme string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[scheme] = f
}

func newProvider(src string, sink core.ProviderSink) (core.Provider, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadSource, src)
	}
	factoriesMu.RLock()
	f, ok := factories[u.Scheme]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}
	return f(src, sink)
}

// Manager holds the active provider instances, one per enabled source.
type Manager struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]core.Provider
}

func NewManager() *Manager {
	return &Manager{providers: make(map[string]core.Provider)}
}

// Enable instantiates and connects the backend for src. Enabling an
// already-enabled source is a no-op returning the existing instance.
// A connect failure leaves nothing registered.
func (m *Manager) Enable(src string, credentials json.RawMessage, sink core.ProviderSink) (core.Provider, error) {
	m.mu.RLock()
	existing, ok := m.providers[src]
	m.mu.RUnlock()
	if ok {
		return existing, nil
	}

	p, err := newProvider(src, sink)
	if err != nil {
		return nil, err
	}
	if err := p.Connect(credentials); err != nil {
		// The backend may have partially started (socket, pumps); tear it down.
		_ = p.Disconnect()
		return nil, fmt.Errorf("connect %s: %w", src, err)
	}

	m.mu.Lock()
	if existing, ok := m.providers[src]; ok {
		m.mu.Unlock()
		// lost the race to another enable; discard ours
		_ = p.Disconnect()
		return existing, nil
	}
	m.providers[src] = p
	m.order = append(m.order, src)
	m.mu.Unlock()

	log.Info().Str("module", "spa").Str("src", src).Msg("provider enabled")
	return p, nil
}

// Disable disconnects, forgets credentials and discards the instance.
// Reports whether a provider was enabled for src.
func (m *Manager) Disable(src string) bool {
	m.mu.Lock()
	p, ok := m.providers[src]
	if ok {
		delete(m.providers, src)
		for i, s := range m.order {
			if s == src {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	if err := p.Disconnect(); err != nil {
		log.Warn().Err(err).Str("module", "spa").Str("src", src).Msg("disconnect")
	}
	if err := p.ForgetCredentials(); err != nil {
		log.Warn().Err(err).Str("module", "spa").Str("src", src).Msg("forget credentials")
	}
	log.Info().Str("module", "spa").Str("src", src).Msg("provider disabled")
	return true
}

// ForgetCredentials asks the backend for src to drop stored credentials.
func (m *Manager) ForgetCredentials(src string) bool {
	m.mu.RLock()
	p, ok := m.providers[src]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if err := p.ForgetCredentials(); err != nil {
		log.Warn().Err(err).Str("module", "spa").Str("src", src).Msg("forget credentials")
	}
	return true
}

// DisableAll disables every enabled provider (sign-out). Returns how many
// were disabled.
func (m *Manager) DisableAll() int {
	m.mu.RLock()
	srcs := append([]string(nil), m.order...)
	m.mu.RUnlock()

	n := 0
	for _, src := range srcs {
		if m.Disable(src) {
			n++
		}
	}
	return n
}

func (m *Manager) Get(src string) (core.Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[src]
	return p, ok
}

// Default returns the first-enabled provider, which handles outbound
// signaling when a surface does not name one.
func (m *Manager) Default() (core.Provider, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.order) == 0 {
		return nil, "", false
	}
	src := m.order[0]
	return m.providers[src], src, true
}

// Enabled lists the enabled sources in enable order.
func (m *Manager) Enabled() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}
