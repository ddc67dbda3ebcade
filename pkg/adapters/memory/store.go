package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/plotlink/pkg/domain"
)

// Store implements ports.PlotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.Snapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.Snapshot),
	}
}

// Save stores a copy of the snapshot.
func (s *Store) Save(ctx context.Context, plotID string, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[plotID] = *snap
	return nil
}

// Load returns a copy so callers cannot mutate stored snapshots by pointer.
func (s *Store) Load(ctx context.Context, plotID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[plotID]
	if !ok {
		return nil, domain.ErrPlotNotFound
	}
	return &snap, nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, plotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, plotID)
	return nil
}

// List returns stored plot IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plots := make([]string, 0, len(s.data))
	for id := range s.data {
		plots = append(plots, id)
	}
	sort.Strings(plots)
	return plots, nil
}
