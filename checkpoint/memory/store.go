// Package memory provides an in-process cqrskit.CheckpointStore.
package memory

import (
	"context"
	"sync"

	"github.com/go-gadgets/cqrskit"
)

// Store tracks the most recent SnapshotCheckpoint per processor name, used
// by FromAggregateSnapshot catchup to resume across restarts.
type Store struct {
	mu          sync.RWMutex
	checkpoints map[string]cqrskit.SnapshotCheckpoint
}

// NewStore creates an empty Store; every processor starts from a zero
// SnapshotCheckpoint.
func NewStore() *Store {
	return &Store{checkpoints: make(map[string]cqrskit.SnapshotCheckpoint)}
}

// LoadCheckpoint implements cqrskit.CheckpointStore.
func (s *Store) LoadCheckpoint(ctx context.Context, processorName string) (cqrskit.SnapshotCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, found := s.checkpoints[processorName]
	if !found {
		return cqrskit.SnapshotCheckpoint{}, nil
	}
	processed := make(map[cqrskit.ID]bool, len(cp.ProcessedIDs))
	for id, v := range cp.ProcessedIDs {
		processed[id] = v
	}
	cp.ProcessedIDs = processed
	return cp, nil
}

// SaveCheckpoint implements cqrskit.CheckpointStore, storing a copy of
// checkpoint.ProcessedIDs so later mutation of the caller's map does not
// reach back into the store.
func (s *Store) SaveCheckpoint(ctx context.Context, processorName string, checkpoint cqrskit.SnapshotCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	processed := make(map[cqrskit.ID]bool, len(checkpoint.ProcessedIDs))
	for id, v := range checkpoint.ProcessedIDs {
		processed[id] = v
	}
	checkpoint.ProcessedIDs = processed
	s.checkpoints[processorName] = checkpoint
	return nil
}
