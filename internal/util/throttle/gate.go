package throttle

import (
	"sync"
	"time"
)

// Gate lets at most one action through per interval and remembers
// whether anything was suppressed since the last pass.
// It is safe for concurrent use.
type Gate struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	pending     bool
	now         func() time.Time
}

// New creates a gate with the specified interval.
// A zero or negative interval lets every action through.
func New(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether the action may run now.
// A refused action is recorded as pending.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.lastAllowed.IsZero() || now.Sub(g.lastAllowed) >= g.interval {
		g.lastAllowed = now
		g.pending = false
		return true
	}
	g.pending = true
	return false
}

// Flush reports whether an action was suppressed since the last pass and clears that state.
// Callers use it to emit a final update that Allow refused.
func (g *Gate) Flush() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.pending
	g.pending = false
	if p {
		g.lastAllowed = g.now()
	}
	return p
}
