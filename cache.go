package cqrskit

import "context"

// AggregateCache holds fully-loaded aggregates in memory between commands,
// keyed by aggregate id, so a hot aggregate does not pay replay cost on
// every command. Cache entries are invalidated by the repository whenever
// a save fails with a ConcurrencyFault, since the cached copy is then known
// stale.
type AggregateCache interface {
	Get(ctx context.Context, aggregateID ID) (Aggregate, bool)
	Put(ctx context.Context, aggregateID ID, agg Aggregate) error
	Invalidate(ctx context.Context, aggregateID ID) error
}

// CacheStrategy decides whether a repository consults/populates the cache
// for a given acquire, independent of which AggregateCache implementation
// is wired in.
type CacheStrategy interface {
	ShouldCache() bool
}

// NoCache disables the cache path: every acquire loads from the store.
type NoCache struct{}

func (NoCache) ShouldCache() bool { return false }

// AlwaysCache enables the cache path unconditionally.
type AlwaysCache struct{}

func (AlwaysCache) ShouldCache() bool { return true }
