package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/internal/core"
)

func TestReconnStatusTransitions(t *testing.T) {
	s := NewReconnStatus()
	assert.Equal(t, ReconnStable, s.State())
	assert.False(t, s.Degraded())

	s.OnReconnecting(core.Reconnection{Timeout: 42, Attempt: 2})
	assert.Equal(t, ReconnReconnecting, s.State())
	assert.True(t, s.Degraded())
	assert.Equal(t, core.Reconnection{Timeout: 42, Attempt: 2}, s.Reconnection())

	s.OnConnected()
	assert.Equal(t, ReconnStable, s.State())
	assert.False(t, s.Degraded())
}

func TestReconnStatusFailed(t *testing.T) {
	s := NewReconnStatus()
	s.OnReconnecting(core.Reconnection{Timeout: 42, Attempt: 5})
	s.OnDisconnected()

	assert.Equal(t, ReconnFailed, s.State())
	assert.True(t, s.Degraded())

	// only an explicit connected event recovers
	s.OnConnected()
	assert.Equal(t, ReconnStable, s.State())
}

func TestReconnStatusReset(t *testing.T) {
	s := NewReconnStatus()
	s.OnReconnecting(core.Reconnection{Timeout: 1, Attempt: 1})
	s.Reset()

	assert.Equal(t, ReconnStable, s.State())
	assert.Equal(t, core.Reconnection{}, s.Reconnection())
}
