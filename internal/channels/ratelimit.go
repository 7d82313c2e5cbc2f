package channels

import (
	"sync"
	"time"
)

// maxTrackedKeys caps the number of tracked flood-guard keys to prevent
// memory exhaustion from attackers rotating source IPs/keys.
const maxTrackedKeys = 4096

type floodEntry struct {
	windowStart time.Time
	count       int
}

// FloodGuard bounds webhook deliveries per source key inside the HTTP
// process. It is deliberately separate from the shared-store rate budgets:
// this one shields the ingestion path itself, before any parsing or store
// access happens. Safe for concurrent use.
type FloodGuard struct {
	mu      sync.Mutex
	entries map[string]*floodEntry
	window  time.Duration
	maxHits int
}

// NewFloodGuard creates a bounded fixed-window flood guard.
func NewFloodGuard(window time.Duration, maxHits int) *FloodGuard {
	return &FloodGuard{
		entries: make(map[string]*floodEntry),
		window:  window,
		maxHits: maxHits,
	}
}

// Allow returns true if the key is within limits. Prunes stale entries and
// enforces a hard cap on tracked keys.
func (g *FloodGuard) Allow(key string) bool {
	if g.maxHits <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	if len(g.entries) >= maxTrackedKeys {
		for k, e := range g.entries {
			if now.Sub(e.windowStart) >= g.window {
				delete(g.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(g.entries) >= maxTrackedKeys {
			for k := range g.entries {
				delete(g.entries, k)
				break
			}
		}
	}

	e, ok := g.entries[key]
	if !ok || now.Sub(e.windowStart) >= g.window {
		g.entries[key] = &floodEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= g.maxHits
}
