// Package memory provides an in-process EventStore, the default backend an
// Application reaches for before wiring in something durable, adapted from
// the teacher's in-memory key-value-backed store but speaking
// cqrskit.Envelope directly instead of going through a separate key-value
// abstraction layer.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gadgets/cqrskit"
)

// Store is an in-memory EventStore and EventReader. Safe for concurrent
// use; every operation holds a single mutex, which is fine for the
// single-process, test-and-demo role this store fills.
type Store struct {
	mu       sync.Mutex
	streams  map[cqrskit.ID][]cqrskit.Envelope
	all      []cqrskit.Envelope
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		streams: make(map[cqrskit.ID][]cqrskit.Envelope),
	}
}

// LoadEvents implements cqrskit.EventStore.
func (s *Store) LoadEvents(ctx context.Context, aggregateID cqrskit.ID, afterVersion int64) ([]cqrskit.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, found := s.streams[aggregateID]
	if !found || int64(len(stream)) <= afterVersion {
		return nil, nil
	}

	out := make([]cqrskit.Envelope, len(stream)-int(afterVersion))
	copy(out, stream[afterVersion:])
	return out, nil
}

// SaveEvents implements cqrskit.EventStore, enforcing optimistic
// concurrency: the stream's current length must equal expectedVersion or
// the write is rejected with a ConcurrencyFault.
func (s *Store) SaveEvents(ctx context.Context, aggregateID cqrskit.ID, expectedVersion int64, events []cqrskit.Envelope) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	actual := int64(len(stream))
	if actual != expectedVersion {
		return cqrskit.NewConcurrencyFault(aggregateID, expectedVersion, actual)
	}

	for i := range events {
		events[i].GlobalSequence = int64(len(s.all)) + 1
		s.all = append(s.all, events[i])
	}
	stream = append(stream, events...)
	s.streams[aggregateID] = stream
	return nil
}

// RewriteEvents implements cqrskit.EventRewriter, overwriting each of
// events in place within both the per-aggregate stream and the global
// commit log, matched by sequence number. Identity (id, global sequence,
// timestamp) is preserved; only Data changes.
func (s *Store) RewriteEvents(ctx context.Context, aggregateID cqrskit.ID, events []cqrskit.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	for _, rewritten := range events {
		idx := rewritten.SequenceNumber - 1
		if idx < 0 || idx >= int64(len(stream)) {
			return fmt.Errorf("cqrskit/memory: no stored event at sequence %d for aggregate %s", rewritten.SequenceNumber, aggregateID)
		}
		stream[idx].Data = rewritten.Data
		globalIdx := stream[idx].GlobalSequence - 1
		if globalIdx >= 0 && globalIdx < int64(len(s.all)) {
			s.all[globalIdx].Data = rewritten.Data
		}
	}
	return nil
}

// CurrentVersion implements cqrskit.EventStore.
func (s *Store) CurrentVersion(ctx context.Context, aggregateID cqrskit.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.streams[aggregateID])), nil
}

// ReadAll implements cqrskit.EventReader, returning events in global commit
// order regardless of which aggregate they belong to.
func (s *Store) ReadAll(ctx context.Context, afterGlobalSequence int64, limit int) ([]cqrskit.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if afterGlobalSequence >= int64(len(s.all)) {
		return nil, nil
	}
	end := int64(len(s.all))
	if afterGlobalSequence+int64(limit) < end {
		end = afterGlobalSequence + int64(limit)
	}
	out := make([]cqrskit.Envelope, end-afterGlobalSequence)
	copy(out, s.all[afterGlobalSequence:end])
	return out, nil
}

