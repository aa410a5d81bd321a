package workflow

import (
	"sync"

	id "expenseflow/pkg/domain"
)

// claimLocks serializes decision recording per claim. Different claims
// proceed fully in parallel; calls on the same claim queue on one mutex.
// Entries are reference counted so resolved claims do not leak lock state.
type claimLocks struct {
	mu      sync.Mutex
	entries map[id.ClaimID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newClaimLocks() *claimLocks {
	return &claimLocks{entries: make(map[id.ClaimID]*lockEntry)}
}

// lock acquires the claim's mutex and returns the release function.
func (l *claimLocks) lock(claimID id.ClaimID) func() {
	l.mu.Lock()
	entry, ok := l.entries[claimID]
	if !ok {
		entry = &lockEntry{}
		l.entries[claimID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, claimID)
		}
		l.mu.Unlock()
	}
}
