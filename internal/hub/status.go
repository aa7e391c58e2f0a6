package hub

import (
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/core"
)

// ReconnState tracks provider connectivity: stable, reconnecting with
// backend-supplied retry metadata, or failed.
type ReconnState string

const (
	ReconnStable       ReconnState = "stable"
	ReconnReconnecting ReconnState = "reconnecting"
	ReconnFailed       ReconnState = "failed"
)

// ReconnStatus is a passive reflector of the backend's own retry policy.
// Timeout and attempt come from the provider, never computed here.
type ReconnStatus struct {
	state   ReconnState
	timeout int
	attempt int
}

func NewReconnStatus() *ReconnStatus {
	return &ReconnStatus{state: ReconnStable}
}

func (s *ReconnStatus) State() ReconnState { return s.state }

// Degraded reports whether roster presence must be forced to disconnected.
func (s *ReconnStatus) Degraded() bool { return s.state != ReconnStable }

// Reconnection returns the last retry metadata reported by the provider.
func (s *ReconnStatus) Reconnection() core.Reconnection {
	return core.Reconnection{Timeout: s.timeout, Attempt: s.attempt}
}

// OnReconnecting enters the reconnecting state with the provider's metadata.
func (s *ReconnStatus) OnReconnecting(r core.Reconnection) {
	s.state = ReconnReconnecting
	s.timeout = r.Timeout
	s.attempt = r.Attempt
	log.Info().Str("module", "hub.status").Int("timeout", r.Timeout).Int("attempt", r.Attempt).Msg("provider reconnecting")
}

// OnConnected returns to stable. Only an explicit connected event does.
func (s *ReconnStatus) OnConnected() {
	s.state = ReconnStable
	s.timeout = 0
	s.attempt = 0
}

// OnDisconnected marks the provider gone for good.
func (s *ReconnStatus) OnDisconnected() {
	s.state = ReconnFailed
	log.Warn().Str("module", "hub.status").Msg("provider disconnected")
}

// Reset reverts to stable, e.g. after sign-out discards the provider.
func (s *ReconnStatus) Reset() {
	s.state = ReconnStable
	s.timeout = 0
	s.attempt = 0
}
