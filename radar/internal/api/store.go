package api

import (
	"sync"
	"time"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/digest"
)

// Snapshot is the published result of one completed run.
type Snapshot struct {
	RunID      string
	FinishedAt time.Time
	Ranking    []types.Ranked
	Digest     *digest.Digest

	// Failures counts queries and deliveries that failed during the run.
	Failures int
}

// Store is a thread-safe holder for the latest run snapshot. The watch loop
// writes it after every run while HTTP handlers read it concurrently.
type Store struct {
	mu     sync.RWMutex
	latest *Snapshot
	runs   int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Put replaces the latest snapshot.
// Callers must not modify snap after calling Put.
func (s *Store) Put(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = snap
	s.runs++
}

// Latest returns the most recent snapshot and false before the first Put.
func (s *Store) Latest() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// Runs returns the number of snapshots published since start.
func (s *Store) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}
