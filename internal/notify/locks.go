package notify

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes dispatch cycles per notification id within this
// process. The database claim horizon covers cross-process overlap;
// this covers the synchronous API path racing the poll worker locally.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*lockEntry)}
}

// lock acquires the mutex for id and returns its release func.
func (k *keyedMutex) lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &lockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
