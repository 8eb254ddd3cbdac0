package engine

import "sync"

// workflowLocks serializes gate transitions per workflow within this process.
// The store's optimistic version check remains the cross-process guard; the
// local lock just keeps concurrent handlers from burning version conflicts
// against each other.
type workflowLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newWorkflowLocks() *workflowLocks {
	return &workflowLocks{locks: make(map[string]*lockEntry)}
}

// acquire locks the given workflow and returns the matching release func.
func (w *workflowLocks) acquire(workflowID string) func() {
	w.mu.Lock()
	entry, ok := w.locks[workflowID]
	if !ok {
		entry = &lockEntry{}
		w.locks[workflowID] = entry
	}
	entry.refs++
	w.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		w.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(w.locks, workflowID)
		}
		w.mu.Unlock()
	}
}
