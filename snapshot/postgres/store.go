// Package postgres provides a Postgres-backed cqrskit.SnapshotStore,
// companion to stores/postgres's event store: single-row-per-aggregate
// storage (single mode: at most one snapshot per aggregate, overwritten on
// every save), state serialized as JSONB.
//
// Schema (left to the operator to create; no migration support):
//
//	CREATE TABLE snapshots (
//	    aggregate_id UUID PRIMARY KEY,
//	    aggregate_type TEXT NOT NULL,
//	    version BIGINT NOT NULL,
//	    snapshot_data JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX snapshots_aggregate_type_idx ON snapshots (aggregate_type);
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-gadgets/cqrskit"
)

// Store is a cqrskit.SnapshotStore backed by Postgres. Because state
// round-trips through JSON, LoadSnapshot hands callers back a
// map[string]interface{} rather than the original Go struct; a
// cqrskit.SnapshotRestorer should recover the concrete type with
// utilities/mapping.DecodeInto.
type Store struct {
	db *sql.DB
}

// NewStore builds a Store over an already-open db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LoadSnapshot implements cqrskit.SnapshotStore. Because this store keeps
// only the latest snapshot per aggregate, intendedVersion only ever has
// that one row to check: if it's newer than intendedVersion, LoadSnapshot
// reports no usable snapshot at all.
func (s *Store) LoadSnapshot(ctx context.Context, aggregateID cqrskit.ID, intendedVersion int64) (cqrskit.Snapshot, bool, error) {
	var (
		aggregateType string
		version       int64
		data          []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate_type, version, snapshot_data FROM snapshots WHERE aggregate_id = $1
	`, aggregateID.String()).Scan(&aggregateType, &version, &data)
	if err == sql.ErrNoRows {
		return cqrskit.Snapshot{}, false, nil
	}
	if err != nil {
		return cqrskit.Snapshot{}, false, fmt.Errorf("cqrskit/snapshot/postgres: query snapshot: %w", err)
	}
	if intendedVersion > 0 && version > intendedVersion {
		return cqrskit.Snapshot{}, false, nil
	}

	var state map[string]interface{}
	if err := json.Unmarshal(data, &state); err != nil {
		return cqrskit.Snapshot{}, false, fmt.Errorf("cqrskit/snapshot/postgres: unmarshal snapshot state: %w", err)
	}

	return cqrskit.Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		State:         state,
	}, true, nil
}

// SaveSnapshot implements cqrskit.SnapshotStore, overwriting any existing
// row for the aggregate.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot cqrskit.Snapshot) error {
	data, err := json.Marshal(snapshot.State)
	if err != nil {
		return fmt.Errorf("cqrskit/snapshot/postgres: marshal snapshot state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, snapshot_data, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (aggregate_id) DO UPDATE SET
			aggregate_type = EXCLUDED.aggregate_type,
			version = EXCLUDED.version,
			snapshot_data = EXCLUDED.snapshot_data,
			created_at = EXCLUDED.created_at
	`, snapshot.AggregateID.String(), snapshot.AggregateType, snapshot.Version, data)
	if err != nil {
		return fmt.Errorf("cqrskit/snapshot/postgres: upsert snapshot: %w", err)
	}
	return nil
}

// ListAggregateIDsByType implements cqrskit.SnapshotStore.
func (s *Store) ListAggregateIDsByType(ctx context.Context, aggregateType string) ([]cqrskit.ID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT aggregate_id FROM snapshots WHERE aggregate_type = $1
	`, aggregateType)
	if err != nil {
		return nil, fmt.Errorf("cqrskit/snapshot/postgres: query aggregate ids: %w", err)
	}
	defer rows.Close()

	var ids []cqrskit.ID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("cqrskit/snapshot/postgres: scan aggregate id: %w", err)
		}
		id, err := cqrskit.ParseID(raw)
		if err != nil {
			return nil, fmt.Errorf("cqrskit/snapshot/postgres: parse aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
