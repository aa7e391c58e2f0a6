package ports

import (
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/core"
)

// PortRateLimiter caps how many messages a single surface may push per
// sliding window. A misbehaving window script must not flood the hub inbox.
type PortRateLimiter struct {
	mu       sync.Mutex
	history  map[core.PortID][]time.Time
	limit    int
	interval time.Duration
}

func NewPortRateLimiter(limit int, interval time.Duration) *PortRateLimiter {
	return &PortRateLimiter{
		history:  make(map[core.PortID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

// Allow records an attempt for the port and reports whether it is within
// the limit for the current window.
func (rl *PortRateLimiter) Allow(id core.PortID) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

// Forget drops the history for a disconnected port.
func (rl *PortRateLimiter) Forget(id core.PortID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
