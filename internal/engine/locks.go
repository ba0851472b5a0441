package engine

import (
	"sync"
)

// keyedMutex serializes work per string key. The orchestrator and the
// retry coordinator both lock on (project mapping id, cloud issue key)
// so a scheduled run and a manual retry can never both create the same
// on-premise issue. Entries are reference-counted and removed once the
// last holder releases, so the map does not grow with issue history.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the key is held and returns the release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// transferKey is the mutual-exclusion key for one issue transfer.
func transferKey(projectMappingID, cloudIssueKey string) string {
	return projectMappingID + "/" + cloudIssueKey
}
