package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyedLock serializes booking operations per doctor. Conflict checking and
// reservation insert are two storage round trips; holding the doctor's lock
// across both makes check-then-reserve atomic within this process. This
// assumes a single instance; running replicas would need the check moved
// into the database.
//
// Locks are created on demand and never removed. One mutex per doctor that
// ever booked is a negligible footprint.
type keyedLock struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *keyedLock) Lock(key uuid.UUID) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
}

func (k *keyedLock) Unlock(key uuid.UUID) {
	k.mu.Lock()
	l := k.locks[key]
	k.mu.Unlock()

	l.Unlock()
}
