package monitor

import "sync"

// filterLocks serializes alert mutation per filter id. Two concurrent passes
// over the same filter must not interleave trigger or history writes.
type filterLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newFilterLocks() *filterLocks {
	return &filterLocks{locks: make(map[int64]*lockEntry)}
}

// lock blocks until the filter's mutex is held and returns the release
// function. An entry is dropped once no goroutine holds or awaits it, so the
// map stays bounded by concurrent contention, not process lifetime.
func (f *filterLocks) lock(filterID int64) func() {
	f.mu.Lock()
	entry, ok := f.locks[filterID]
	if !ok {
		entry = &lockEntry{}
		f.locks[filterID] = entry
	}
	entry.refs++
	f.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		f.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(f.locks, filterID)
		}
		f.mu.Unlock()
	}
}
