package limits

import (
	"sync"
	"time"
)

// IntervalGate enforces a minimum interval between granted requests for a
// single upstream provider family.
//
// The gate tracks the timestamp of the last granted request. A request is
// granted when the configured interval has elapsed since then; otherwise it
// is either refused with the remaining wait, or slept out when waiting is
// requested.
//
// IntervalGate is thread-safe. The timestamp uses Go's monotonic clock, so
// wall-clock adjustments cannot skew the interval.
type IntervalGate struct {
	mu   sync.Mutex
	last time.Time
}

// NewIntervalGate creates a gate with no prior granted request, so the
// first call is always allowed.
func NewIntervalGate() *IntervalGate {
	return &IntervalGate{}
}

// Gate checks whether a request may proceed.
//
// If minInterval has elapsed since the last granted request (or none has
// been granted yet), the gate stamps the current time and returns
// (true, 0). If not elapsed and wait is false, it returns false and the
// remaining wait without updating the stamp. If wait is true, it sleeps
// the remaining interval, then stamps and allows.
//
// A zero or negative minInterval disables gating entirely.
func (g *IntervalGate) Gate(minInterval time.Duration, wait bool) (bool, time.Duration) {
	if minInterval <= 0 {
		return true, 0
	}

	g.mu.Lock()

	now := time.Now()
	if g.last.IsZero() || now.Sub(g.last) >= minInterval {
		g.last = now
		g.mu.Unlock()
		return true, 0
	}

	remaining := minInterval - now.Sub(g.last)
	if !wait {
		g.mu.Unlock()
		return false, remaining
	}

	// Reserve the slot before sleeping so concurrent waiters queue up
	// behind this request rather than racing for the same interval.
	g.last = now.Add(remaining)
	g.mu.Unlock()

	time.Sleep(remaining)
	return true, 0
}

// Reset clears the last-granted timestamp. This is primarily for testing.
func (g *IntervalGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = time.Time{}
}

// Gates holds one IntervalGate per upstream provider family, created
// lazily. All methods are safe for concurrent use.
type Gates struct {
	mu    sync.Mutex
	gates map[string]*IntervalGate
}

// NewGates creates an empty gate set.
func NewGates() *Gates {
	return &Gates{gates: make(map[string]*IntervalGate)}
}

// For returns the gate for the named provider family, creating it on
// first use.
func (gs *Gates) For(name string) *IntervalGate {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	g, ok := gs.gates[name]
	if !ok {
		g = NewIntervalGate()
		gs.gates[name] = g
	}
	return g
}
