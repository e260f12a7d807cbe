package orchestrator

import "sync"

// assetLocks serializes processing per asset id. The dedup lookup followed
// by action creation is a check-then-act sequence; holding the asset's lock
// across both closes the race between concurrent assessments for the same
// asset. Different assets proceed in parallel.
type assetLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newAssetLocks() *assetLocks {
	return &assetLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the lock for the given asset and returns its unlock
// function. Entries are reference counted and removed when unused so the
// map does not grow with every asset ever seen.
func (l *assetLocks) Lock(assetID string) func() {
	l.mu.Lock()
	e, ok := l.entries[assetID]
	if !ok {
		e = &lockEntry{}
		l.entries[assetID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, assetID)
		}
		l.mu.Unlock()
	}
}
