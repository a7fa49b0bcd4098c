// Package postgres provides a Postgres-backed cqrskit.EventStore and
// cqrskit.EventReader, adapted from the go-eventstore reference
// implementation's transactional, serializable-isolation append path: a
// single events table keyed by aggregate id and version, with a unique
// constraint on (aggregate_id, sequence_number) turning a racing writer's
// insert into a Postgres constraint violation the store converts back
// into a ConcurrencyFault.
//
// Schema (left to the operator to create; this package has no migration
// support, matching the framework's storage-setup non-goal):
//
//	CREATE TABLE events (
//	    global_sequence BIGSERIAL PRIMARY KEY,
//	    aggregate_id UUID NOT NULL,
//	    sequence_number BIGINT NOT NULL,
//	    event_type TEXT NOT NULL,
//	    event_data JSONB NOT NULL,
//	    correlation_id UUID,
//	    causation_id UUID,
//	    event_id UUID NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    UNIQUE (aggregate_id, sequence_number)
//	);
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-gadgets/cqrskit"
)

const uniqueViolation = "23505"

// PayloadCodec tells the store how to turn a stored event's event_type
// column back into a concrete Go value, the way a PayloadRegistry does for
// the Kafka transport. Applications register one entry per event payload
// type their aggregates emit.
type PayloadCodec struct {
	byName map[string]reflect.Type
}

// NewPayloadCodec creates an empty PayloadCodec.
func NewPayloadCodec() *PayloadCodec {
	return &PayloadCodec{byName: make(map[string]reflect.Type)}
}

// RegisterPayload adds T to c, keyed by its own Go type name.
func RegisterPayload[T any](c *PayloadCodec) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	c.byName[t.String()] = t
}

// Store is a cqrskit.EventStore and cqrskit.EventReader backed by
// Postgres.
type Store struct {
	db     *sql.DB
	codec  *PayloadCodec
	tracer trace.Tracer
}

// NewStore builds a Store over an already-open db using codec to encode
// and decode event payloads.
func NewStore(db *sql.DB, codec *PayloadCodec) *Store {
	return &Store{db: db, codec: codec, tracer: otel.Tracer("cqrskit/stores/postgres")}
}

// SaveEvents implements cqrskit.EventStore using a serializable
// transaction plus a unique constraint on (aggregate_id, sequence_number)
// as a second line of defense against a racing writer that slips past the
// application-level version check between the SELECT and the INSERTs.
func (s *Store) SaveEvents(ctx context.Context, aggregateID cqrskit.ID, expectedVersion int64, events []cqrskit.Envelope) error {
	if len(events) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "eventstore.save_events",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int64("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("cqrskit/postgres: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE aggregate_id = $1
	`, aggregateID.String()).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("cqrskit/postgres: query current version: %w", err)
	}

	if currentVersion != expectedVersion {
		span.SetAttributes(attribute.Int64("actual.version", currentVersion))
		return cqrskit.NewConcurrencyFault(aggregateID, expectedVersion, currentVersion)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
			(aggregate_id, sequence_number, event_type, event_data, correlation_id, causation_id, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("cqrskit/postgres: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, env := range events {
		data, err := json.Marshal(env.Data)
		if err != nil {
			return fmt.Errorf("cqrskit/postgres: marshal event data: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			aggregateID.String(),
			env.SequenceNumber,
			reflect.TypeOf(env.Data).String(),
			data,
			env.CorrelationID.String(),
			env.CausationID.String(),
			env.ID.String(),
			env.Timestamp,
		)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
				return cqrskit.NewConcurrencyFault(aggregateID, expectedVersion, currentVersion)
			}
			return fmt.Errorf("cqrskit/postgres: insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cqrskit/postgres: commit: %w", err)
	}
	return nil
}

// RewriteEvents implements cqrskit.EventRewriter, updating each row's
// event_type/event_data in place, matched by (aggregate_id,
// sequence_number), for the eager upcasting strategy's gradual migration.
func (s *Store) RewriteEvents(ctx context.Context, aggregateID cqrskit.ID, events []cqrskit.Envelope) error {
	ctx, span := s.tracer.Start(ctx, "eventstore.rewrite_events",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("cqrskit/postgres: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE events SET event_type = $1, event_data = $2
		WHERE aggregate_id = $3 AND sequence_number = $4
	`)
	if err != nil {
		return fmt.Errorf("cqrskit/postgres: prepare update: %w", err)
	}
	defer stmt.Close()

	for _, env := range events {
		data, err := json.Marshal(env.Data)
		if err != nil {
			return fmt.Errorf("cqrskit/postgres: marshal event data: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, reflect.TypeOf(env.Data).String(), data, aggregateID.String(), env.SequenceNumber); err != nil {
			return fmt.Errorf("cqrskit/postgres: update event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cqrskit/postgres: commit: %w", err)
	}
	return nil
}

// LoadEvents implements cqrskit.EventStore.
func (s *Store) LoadEvents(ctx context.Context, aggregateID cqrskit.ID, afterVersion int64) ([]cqrskit.Envelope, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.load_events")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT global_sequence, sequence_number, event_type, event_data, correlation_id, causation_id, event_id, created_at
		FROM events
		WHERE aggregate_id = $1 AND sequence_number > $2
		ORDER BY sequence_number ASC
	`, aggregateID.String(), afterVersion)
	if err != nil {
		return nil, fmt.Errorf("cqrskit/postgres: query events: %w", err)
	}
	defer rows.Close()

	events, err := s.scanEvents(rows, aggregateID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// CurrentVersion implements cqrskit.EventStore.
func (s *Store) CurrentVersion(ctx context.Context, aggregateID cqrskit.ID) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE aggregate_id = $1
	`, aggregateID.String()).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("cqrskit/postgres: query version: %w", err)
	}
	return version, nil
}

// ReadAll implements cqrskit.EventReader, streaming events in global commit
// order across every aggregate.
func (s *Store) ReadAll(ctx context.Context, afterGlobalSequence int64, limit int) ([]cqrskit.Envelope, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.read_all")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT global_sequence, sequence_number, event_type, event_data, correlation_id, causation_id, event_id, created_at, aggregate_id
		FROM events
		WHERE global_sequence > $1
		ORDER BY global_sequence ASC
		LIMIT $2
	`, afterGlobalSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("cqrskit/postgres: query stream: %w", err)
	}
	defer rows.Close()

	var events []cqrskit.Envelope
	for rows.Next() {
		var (
			globalSeq, seq                             int64
			eventType                                   string
			data                                        []byte
			correlationID, causationID, eventID, aggID string
			createdAt                                   time.Time
		)
		if err := rows.Scan(&globalSeq, &seq, &eventType, &data, &correlationID, &causationID, &eventID, &createdAt, &aggID); err != nil {
			return nil, fmt.Errorf("cqrskit/postgres: scan event: %w", err)
		}
		env, err := s.decode(globalSeq, seq, eventType, data, correlationID, causationID, eventID, aggID, createdAt)
		if err != nil {
			return nil, err
		}
		events = append(events, env)
	}
	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, rows.Err()
}

func (s *Store) scanEvents(rows *sql.Rows, aggregateID cqrskit.ID) ([]cqrskit.Envelope, error) {
	var events []cqrskit.Envelope
	for rows.Next() {
		var (
			globalSeq, seq                      int64
			eventType                            string
			data                                 []byte
			correlationID, causationID, eventID string
			createdAt                            time.Time
		)
		if err := rows.Scan(&globalSeq, &seq, &eventType, &data, &correlationID, &causationID, &eventID, &createdAt); err != nil {
			return nil, fmt.Errorf("cqrskit/postgres: scan event: %w", err)
		}
		env, err := s.decode(globalSeq, seq, eventType, data, correlationID, causationID, eventID, aggregateID.String(), createdAt)
		if err != nil {
			return nil, err
		}
		events = append(events, env)
	}
	return events, rows.Err()
}

func (s *Store) decode(globalSeq, seq int64, eventType string, data []byte, correlationID, causationID, eventID, aggregateID string, createdAt time.Time) (cqrskit.Envelope, error) {
	goType, ok := s.codec.byName[eventType]
	if !ok {
		return cqrskit.Envelope{}, fmt.Errorf("cqrskit/postgres: no payload type registered for %q", eventType)
	}
	payload := reflect.New(goType)
	if err := json.Unmarshal(data, payload.Interface()); err != nil {
		return cqrskit.Envelope{}, fmt.Errorf("cqrskit/postgres: unmarshal event data: %w", err)
	}

	aggID, err := cqrskit.ParseID(aggregateID)
	if err != nil {
		return cqrskit.Envelope{}, err
	}
	corrID, _ := cqrskit.ParseID(correlationID)
	causeID, _ := cqrskit.ParseID(causationID)
	evID, err := cqrskit.ParseID(eventID)
	if err != nil {
		return cqrskit.Envelope{}, err
	}

	return cqrskit.Envelope{
		EventMeta: cqrskit.EventMeta{
			ID:             evID,
			AggregateID:    aggID,
			SequenceNumber: seq,
			GlobalSequence: globalSeq,
			Timestamp:      createdAt,
			CorrelationID:  corrID,
			CausationID:    causeID,
		},
		Data: payload.Elem().Interface(),
	}, nil
}
