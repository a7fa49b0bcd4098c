// Package memory provides in-process cqrskit.SnapshotStore implementations,
// adapted from the teacher's memorysnap middleware but implemented directly
// against the SnapshotStore interface rather than as commit/refresh
// middleware around an EventStore. Store covers single mode (overwrite);
// VersionedStore covers versioned mode (append-only).
package memory

import (
	"context"
	"sync"

	"github.com/go-gadgets/cqrskit"
)

// Store holds the single latest snapshot per aggregate in memory: a
// single-mode cqrskit.SnapshotStore. SaveSnapshot overwrites any prior
// snapshot for the aggregate, so LoadSnapshot's intendedVersion ceiling
// only ever has the one stored snapshot to check against.
type Store struct {
	mu        sync.RWMutex
	snapshots map[cqrskit.ID]cqrskit.Snapshot
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{snapshots: make(map[cqrskit.ID]cqrskit.Snapshot)}
}

// LoadSnapshot implements cqrskit.SnapshotStore.
func (s *Store) LoadSnapshot(ctx context.Context, aggregateID cqrskit.ID, intendedVersion int64) (cqrskit.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, found := s.snapshots[aggregateID]
	if !found {
		return cqrskit.Snapshot{}, false, nil
	}
	if intendedVersion > 0 && snap.Version > intendedVersion {
		return cqrskit.Snapshot{}, false, nil
	}
	return snap, true, nil
}

// SaveSnapshot implements cqrskit.SnapshotStore, replacing any prior
// snapshot for the same aggregate.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot cqrskit.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// ListAggregateIDsByType implements cqrskit.SnapshotStore.
func (s *Store) ListAggregateIDsByType(ctx context.Context, aggregateType string) ([]cqrskit.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []cqrskit.ID
	for id, snap := range s.snapshots {
		if snap.AggregateType == aggregateType {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// VersionedStore keeps every snapshot ever saved per aggregate, in
// ascending version order: a versioned-mode cqrskit.SnapshotStore.
// LoadSnapshot picks the highest-versioned snapshot with Version <=
// intendedVersion, letting an aggregate be rebuilt as of a past version
// rather than only its latest.
type VersionedStore struct {
	mu        sync.RWMutex
	snapshots map[cqrskit.ID][]cqrskit.Snapshot
}

// NewVersionedStore creates an empty VersionedStore.
func NewVersionedStore() *VersionedStore {
	return &VersionedStore{snapshots: make(map[cqrskit.ID][]cqrskit.Snapshot)}
}

// LoadSnapshot implements cqrskit.SnapshotStore. intendedVersion of 0 means
// the latest snapshot regardless of version.
func (s *VersionedStore) LoadSnapshot(ctx context.Context, aggregateID cqrskit.ID, intendedVersion int64) (cqrskit.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.snapshots[aggregateID]
	if len(history) == 0 {
		return cqrskit.Snapshot{}, false, nil
	}
	if intendedVersion <= 0 {
		return history[len(history)-1], true, nil
	}
	var best cqrskit.Snapshot
	found := false
	for _, snap := range history {
		if snap.Version <= intendedVersion {
			best = snap
			found = true
			continue
		}
		break
	}
	return best, found, nil
}

// SaveSnapshot implements cqrskit.SnapshotStore, appending snapshot to the
// aggregate's snapshot history. Snapshots must be saved in increasing
// version order; this store does not sort.
func (s *VersionedStore) SaveSnapshot(ctx context.Context, snapshot cqrskit.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.AggregateID] = append(s.snapshots[snapshot.AggregateID], snapshot)
	return nil
}

// ListAggregateIDsByType implements cqrskit.SnapshotStore.
func (s *VersionedStore) ListAggregateIDsByType(ctx context.Context, aggregateType string) ([]cqrskit.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []cqrskit.ID
	for id, history := range s.snapshots {
		if len(history) > 0 && history[0].AggregateType == aggregateType {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
