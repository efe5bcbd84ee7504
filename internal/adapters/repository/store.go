// Package repository holds the raw per-trial results of a session for
// diagnostic access. Results arrive from multiple workers concurrently; the
// store enforces a single-writer-per-slot discipline so a trial index is
// written exactly once.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/dipole/internal/domain/model"
)

// Store provides read/write access to the per-trial result set.
type Store interface {
	// Put records one trial result. A second Put for the same trial index
	// fails with ErrDuplicateTrial and leaves the first result in place.
	Put(ctx context.Context, r model.TrialResult) error

	// Get returns the result for one trial index.
	// Fails with ErrNotFound for an unknown index.
	Get(ctx context.Context, trialIdx int) (model.TrialResult, error)

	// List returns all collected results sorted by trial index.
	List(ctx context.Context) []model.TrialResult

	// Count returns the number of results collected.
	Count(ctx context.Context) int
}

// InMemoryStore implements Store with a mutex-guarded map.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[int]model.TrialResult
}

// NewInMemoryStore creates an empty result store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[int]model.TrialResult)}
}

// Put records one trial result.
func (s *InMemoryStore) Put(_ context.Context, r model.TrialResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.results[r.TrialIdx]; dup {
		return fmt.Errorf("%w: trial %d", ErrDuplicateTrial, r.TrialIdx)
	}
	s.results[r.TrialIdx] = r
	return nil
}

// Get returns the result for one trial index.
func (s *InMemoryStore) Get(_ context.Context, trialIdx int) (model.TrialResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[trialIdx]
	if !ok {
		return model.TrialResult{}, fmt.Errorf("%w: trial %d", ErrNotFound, trialIdx)
	}
	return r, nil
}

// List returns all collected results sorted by trial index.
func (s *InMemoryStore) List(_ context.Context) []model.TrialResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TrialResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialIdx < out[j].TrialIdx })
	return out
}

// Count returns the number of results collected.
func (s *InMemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
