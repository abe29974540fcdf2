package canvas

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/pixelwall/internal/domain"
)

// CooldownGate enforces a minimum interval between accepted edits per identity.
// Records older than the window are indistinguishable from absent ones, so the
// eviction sweep drops them without changing any admission decision.
type CooldownGate struct {
	window time.Duration
	clock  clockwork.Clock

	mu         sync.Mutex
	lastAccept map[string]time.Time
}

func NewCooldownGate(window time.Duration, clock clockwork.Clock) *CooldownGate {
	return &CooldownGate{
		window:     window,
		clock:      clock,
		lastAccept: make(map[string]time.Time),
	}
}

// Window returns the configured cooldown window.
func (g *CooldownGate) Window() time.Duration {
	return g.window
}

// TryAdmit admits the edit and records now when identity has no accepted edit
// within the window. The check and the update happen under one lock.
func (g *CooldownGate) TryAdmit(_ context.Context, identity string, now time.Time) (domain.Admission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastAccept[identity]; ok {
		if elapsed := now.Sub(last); elapsed < g.window {
			return domain.Reject(g.window - elapsed), nil
		}
	}

	g.lastAccept[identity] = now
	return domain.Admit(), nil
}

// Len returns the number of tracked identities.
func (g *CooldownGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lastAccept)
}

// Sweep removes records whose window has elapsed at now and returns how many were removed.
func (g *CooldownGate) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	evicted := 0
	for identity, last := range g.lastAccept {
		if now.Sub(last) >= g.window {
			delete(g.lastAccept, identity)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer runs a periodic goroutine that sweeps expired records.
// Returns a stop function that should be deferred.
func (g *CooldownGate) StartEvictionTimer(interval time.Duration) func() {
	ticker := g.clock.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := g.Sweep(g.clock.Now()); evicted > 0 {
					slog.Debug("Evicted expired cooldown records", "count", evicted, "remaining", g.Len())
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
