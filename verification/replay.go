package verification

import (
	"sync"
	"time"
)

// ReplayGuard remembers transaction hashes that already satisfied a
// request, for a bounded window. One on-ledger payment then unlocks at
// most one resource access. Entries expire so the set cannot grow
// without bound; after expiry a replayed hash fails TX-level checks
// only if the caller's expectations changed, which is the reference
// trade-off for keeping the gateway stateless.
type ReplayGuard struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewReplayGuard creates a guard whose entries live for the given
// window. A zero window defaults to one hour.
func NewReplayGuard(window time.Duration) *ReplayGuard {
	if window <= 0 {
		window = time.Hour
	}
	return &ReplayGuard{
		window: window,
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
}

// Seen reports whether the hash is currently marked.
func (g *ReplayGuard) Seen(txHash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	_, ok := g.seen[txHash]
	return ok
}

// MarkIfNew marks the hash and reports true when it was not already
// present. The check and the mark are one critical section, so two
// concurrent verifications of the same hash admit exactly one.
func (g *ReplayGuard) MarkIfNew(txHash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	if _, ok := g.seen[txHash]; ok {
		return false
	}
	g.seen[txHash] = g.now().Add(g.window)
	return true
}

// sweep drops expired entries. Caller holds the lock.
func (g *ReplayGuard) sweep() {
	now := g.now()
	for h, deadline := range g.seen {
		if now.After(deadline) {
			delete(g.seen, h)
		}
	}
}
