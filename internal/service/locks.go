package service

import (
	"sync"

	"github.com/google/uuid"
)

// orderLocks serializes state-machine operations per order ID without
// blocking other orders. Entries are reference-counted so the map does not
// grow with every order ever touched.
type orderLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[uuid.UUID]*orderLock)}
}

func (l *orderLocks) Lock(id uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &orderLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *orderLocks) Unlock(id uuid.UUID) {
	l.mu.Lock()
	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
