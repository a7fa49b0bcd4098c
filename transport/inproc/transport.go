// Package inproc provides an in-process cqrskit.EventTransport, adapted
// from the teacher's distribution/inproc distributor: there, a Distributor
// pushed events directly into registered handlers; here a Transport fans
// published events out to per-Subscription buffered channels instead, so
// it can satisfy the pull-based Subscription.Next() contract used by event
// processors and sagas.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gadgets/cqrskit"
)

// defaultBufferSize is how many events a slow subscriber can fall behind
// by before Publish blocks on it.
const defaultBufferSize = 256

// Transport is an in-process cqrskit.EventTransport. Publish fans each
// event out to every live subscription whose topic filter matches.
type Transport struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// New creates an empty Transport.
func New() *Transport {
	return &Transport{subs: make(map[*subscription]struct{})}
}

// Publish implements cqrskit.EventTransport.
func (t *Transport) Publish(ctx context.Context, events []cqrskit.Envelope) error {
	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, env := range events {
		for _, sub := range subs {
			if !sub.matches(env) {
				continue
			}
			select {
			case sub.ch <- env:
			case <-ctx.Done():
				return ctx.Err()
			case <-sub.closed:
			}
		}
	}
	return nil
}

// Subscribe implements cqrskit.EventTransport.
func (t *Transport) Subscribe(ctx context.Context, topics []cqrskit.EventType) (cqrskit.Subscription, error) {
	sub := &subscription{
		ch:     make(chan cqrskit.Envelope, defaultBufferSize),
		closed: make(chan struct{}),
		topics: topicSet(topics),
		parent: t,
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub, nil
}

// Close implements cqrskit.EventTransport, closing every outstanding
// subscription.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	t.subs = make(map[*subscription]struct{})
	t.mu.Unlock()

	for _, sub := range subs {
		close(sub.closed)
	}
	return nil
}

func topicSet(topics []cqrskit.EventType) map[cqrskit.EventType]struct{} {
	if len(topics) == 0 {
		return nil
	}
	set := make(map[cqrskit.EventType]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return set
}

type subscription struct {
	ch     chan cqrskit.Envelope
	closed chan struct{}
	topics map[cqrskit.EventType]struct{}
	parent *Transport
}

func (s *subscription) matches(env cqrskit.Envelope) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[cqrskit.EventType(fmt.Sprintf("%T", env.Data))]
	return ok
}

// Next implements cqrskit.Subscription.
func (s *subscription) Next(ctx context.Context) (cqrskit.Envelope, error) {
	select {
	case env, ok := <-s.ch:
		if !ok {
			return cqrskit.Envelope{}, cqrskit.ErrEndOfStream
		}
		return env, nil
	case <-s.closed:
		return cqrskit.Envelope{}, cqrskit.ErrEndOfStream
	case <-ctx.Done():
		return cqrskit.Envelope{}, ctx.Err()
	}
}

// Depth implements cqrskit.Subscription, returning the number of events
// currently buffered in this subscription's channel.
func (s *subscription) Depth() int {
	return len(s.ch)
}

// Close implements cqrskit.Subscription.
func (s *subscription) Close(ctx context.Context) error {
	s.parent.mu.Lock()
	delete(s.parent.subs, s)
	s.parent.mu.Unlock()

	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}
