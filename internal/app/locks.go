package app

import (
	"sync"

	"github.com/google/uuid"
)

// MutexMap hands out one mutex per UUID key, lazily. Entries are never
// evicted; the map is bounded by the number of distinct keys ever locked,
// which stays small at savings-group scale.
type MutexMap struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// For returns the mutex for the given key, creating it on first use.
func (m *MutexMap) For(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}
