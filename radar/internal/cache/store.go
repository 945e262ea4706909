package cache

import (
	"sync"
	"time"

	"github.com/starradar/starradar/pkg/types"
)

// Store is a thread-safe in-memory view of the star history, keyed by
// repository ID. Entries are never deleted; stale ones are simply unused.
type Store struct {
	mu   sync.RWMutex
	data map[string]types.CacheEntry
}

// NewStore returns a Store seeded with entries. The map is copied.
func NewStore(entries map[string]types.CacheEntry) *Store {
	data := make(map[string]types.CacheEntry, len(entries))
	for id, e := range entries {
		data[id] = e
	}
	return &Store{data: data}
}

// Get returns the entry for id and whether one was found.
func (s *Store) Get(id string) (types.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	return e, ok
}

// Observe records the current star count of every candidate at now,
// replacing any previous entry for the same ID.
func (s *Store) Observe(cands []types.Candidate, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cands {
		s.data[c.ID] = types.CacheEntry{Stars: c.Stars, ObservedAt: now}
	}
}

// Entries returns a copy of all entries, suitable for Backend.Save.
func (s *Store) Entries() map[string]types.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.CacheEntry, len(s.data))
	for id, e := range s.data {
		out[id] = e
	}
	return out
}

// Len returns the number of entries held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
