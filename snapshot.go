package cqrskit

import (
	"context"
	"time"
)

// Snapshot is a point-in-time capture of an aggregate's state, used to
// short-circuit full-history replay. AggregateType is the aggregate's own
// qualified type name, needed by FromAggregateSnapshot catchup to find
// every aggregate of a given type without a full event scan.
type Snapshot struct {
	AggregateID   ID
	AggregateType string
	Version       int64
	Timestamp     time.Time
	State         any
}

// SnapshotStore persists and retrieves snapshots. A store runs in one of
// two modes:
//
//   - single mode keeps only the latest snapshot per aggregate, overwriting
//     on every SaveSnapshot; LoadSnapshot's intendedVersion ceiling is then
//     just a check that the one stored snapshot qualifies.
//   - versioned mode appends every snapshot ever saved for an aggregate,
//     never discarding old ones; LoadSnapshot picks the highest-versioned
//     snapshot with Version <= intendedVersion, letting an aggregate be
//     rebuilt as of a version in its past.
//
// Both modes satisfy the same interface; callers that only ever pass
// intendedVersion 0 (meaning "latest") cannot tell them apart.
type SnapshotStore interface {
	// LoadSnapshot returns the best snapshot for aggregateID satisfying
	// Version <= intendedVersion, or simply the latest snapshot if
	// intendedVersion is 0.
	LoadSnapshot(ctx context.Context, aggregateID ID, intendedVersion int64) (Snapshot, bool, error)

	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// ListAggregateIDsByType returns the id of every aggregate that has
	// ever had a snapshot saved under aggregateType, in no particular
	// order. Used by FromAggregateSnapshot catchup to enumerate the
	// aggregates it must project without scanning raw events.
	ListAggregateIDsByType(ctx context.Context, aggregateType string) ([]ID, error)
}

// SnapshotStrategy decides whether a repository should take a new snapshot
// after a successful save, given how many versions have passed since the
// last one.
type SnapshotStrategy interface {
	ShouldSnapshot(versionsSinceLastSnapshot int64) bool
}

// NeverSnapshot disables snapshotting entirely: every load replays full
// history. Appropriate for aggregates with naturally short event streams.
type NeverSnapshot struct{}

func (NeverSnapshot) ShouldSnapshot(int64) bool { return false }

// SnapshotEveryN snapshots once at least N versions have passed since the
// last snapshot.
type SnapshotEveryN struct {
	N int64
}

func (s SnapshotEveryN) ShouldSnapshot(versionsSinceLastSnapshot int64) bool {
	return versionsSinceLastSnapshot >= s.N
}
