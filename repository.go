package cqrskit

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// RepositoryConfig bundles the cache and snapshot policy for one aggregate
// type. Aggregate types with no registered config fall back to whatever
// RepositoryConfigRegistry.SetDefault established.
type RepositoryConfig struct {
	Cache            AggregateCache
	CacheStrategy    CacheStrategy
	Snapshots        SnapshotStore
	SnapshotStrategy SnapshotStrategy
}

// RepositoryConfigRegistry maps aggregate type to RepositoryConfig, with a
// fallback default for types that never registered one. This lets most
// aggregates in an application share one cache/snapshot policy while a few
// hot or cold ones override it.
type RepositoryConfigRegistry struct {
	mu     sync.RWMutex
	def    RepositoryConfig
	byType map[reflect.Type]RepositoryConfig
}

// NewRepositoryConfigRegistry creates a registry whose default is
// no-cache, no-snapshot: every aggregate replays full history from the
// store until configured otherwise.
func NewRepositoryConfigRegistry() *RepositoryConfigRegistry {
	return &RepositoryConfigRegistry{
		def: RepositoryConfig{
			CacheStrategy:    NoCache{},
			SnapshotStrategy: NeverSnapshot{},
		},
		byType: make(map[reflect.Type]RepositoryConfig),
	}
}

// SetDefault replaces the fallback config used by aggregate types with no
// specific registration.
func (r *RepositoryConfigRegistry) SetDefault(cfg RepositoryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = cfg
}

// Register installs cfg for aggregate type A.
func Register[A any](r *RepositoryConfigRegistry, cfg RepositoryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[typeOf[A]()] = cfg
}

// get returns the config registered for aggregate type t, or the registry's
// default if none was registered.
func (r *RepositoryConfigRegistry) get(t reflect.Type) RepositoryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.byType[t]; ok {
		return cfg
	}
	return r.def
}

// Repository loads and saves aggregates of type *A, applying the
// RepositoryConfig's cache and snapshot policy around an EventBus.
// Constructed per aggregate type, typically once per application.
type Repository[A any] struct {
	bus     *EventBus
	config  RepositoryConfig
	newFunc func() *A
}

// NewRepository builds a Repository for aggregate type A. newFunc must
// return a freshly Init'd zero-value aggregate (command handlers and
// appliers registered, identity unset); Repository calls it once per
// Acquire that cannot be satisfied from cache.
func NewRepository[A any](bus *EventBus, configs *RepositoryConfigRegistry, newFunc func() *A) *Repository[A] {
	return &Repository[A]{
		bus:     bus,
		config:  configs.get(typeOf[A]()),
		newFunc: newFunc,
	}
}

// Acquire loads aggregateID, preferring a cached copy, then a snapshot plus
// tail replay, falling back to full replay. The returned aggregate's
// identity and version are always set even when it has no prior events
// (a brand-new aggregate about to be created by the first command).
func (r *Repository[A]) Acquire(ctx context.Context, aggregateID ID) (Aggregate, error) {
	if r.config.CacheStrategy != nil && r.config.CacheStrategy.ShouldCache() && r.config.Cache != nil {
		if cached, ok := r.config.Cache.Get(ctx, aggregateID); ok {
			return cached, nil
		}
	}

	agg := any(r.newFunc()).(Aggregate)
	agg.setIdentity(aggregateID, 0)

	afterVersion := int64(0)
	if r.config.Snapshots != nil {
		snap, found, err := r.config.Snapshots.LoadSnapshot(ctx, aggregateID, 0)
		if err != nil {
			return nil, err
		}
		if found {
			if restorable, ok := agg.(SnapshotRestorer); ok {
				restorable.RestoreSnapshot(snap.State)
				agg.setIdentity(aggregateID, snap.Version)
				afterVersion = snap.Version
			}
		}
	}

	events, err := r.bus.LoadEvents(ctx, aggregateID, afterVersion)
	if err != nil {
		return nil, err
	}
	if err := ReplayEvents(ctx, agg, events); err != nil {
		return nil, err
	}

	if r.config.CacheStrategy != nil && r.config.CacheStrategy.ShouldCache() && r.config.Cache != nil {
		if err := r.config.Cache.Put(ctx, aggregateID, agg); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

// SnapshotRestorer is implemented by aggregates that support restoring
// from a snapshot's opaque state, typically by embedding a mapstructure
// decode of State into their own fields. Aggregates that never snapshot
// need not implement it; Acquire simply replays full history for them.
type SnapshotRestorer interface {
	RestoreSnapshot(state any)
	SnapshotState() any
}

// Save persists agg's uncommitted events through the repository's event
// bus, using its current version minus the number of new events as the
// expected prior version, then clears the buffer and updates cache and
// snapshot state. On a ConcurrencyFault, any cached copy is invalidated so
// the next Acquire reloads from the store.
func (r *Repository[A]) Save(ctx context.Context, agg Aggregate) error {
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	expectedVersion := events[0].SequenceNumber - 1

	if err := r.bus.PublishEvents(ctx, agg.AggregateID(), expectedVersion, events); err != nil {
		if r.config.Cache != nil {
			_ = r.config.Cache.Invalidate(ctx, agg.AggregateID())
		}
		return err
	}
	agg.ClearUncommittedEvents()

	if r.config.Cache != nil && r.config.CacheStrategy != nil && r.config.CacheStrategy.ShouldCache() {
		if err := r.config.Cache.Put(ctx, agg.AggregateID(), agg); err != nil {
			return err
		}
	}

	if r.config.Snapshots != nil && r.config.SnapshotStrategy != nil {
		restorable, okR := agg.(SnapshotRestorer)
		marker, okM := agg.(snapshotVersionMarker)
		if okR && okM {
			since := agg.Version() - marker.lastSnapshotVersion()
			if r.config.SnapshotStrategy.ShouldSnapshot(since) {
				snap := Snapshot{
					AggregateID:   agg.AggregateID(),
					AggregateType: typeOf[A]().String(),
					Version:       agg.Version(),
					Timestamp:     time.Now().UTC(),
					State:         restorable.SnapshotState(),
				}
				if err := r.config.Snapshots.SaveSnapshot(ctx, snap); err != nil {
					return err
				}
				marker.markSnapshotVersion(agg.Version())
			}
		}
	}
	return nil
}

// snapshotVersionMarker is an optional refinement of SnapshotRestorer
// allowing the repository to track versions-since-last-snapshot.
// AggregateRoot implements it directly, so any aggregate embedding
// AggregateRoot is eligible for repository-driven snapshotting as soon as
// it also implements SnapshotRestorer.
type snapshotVersionMarker interface {
	lastSnapshotVersion() int64
	markSnapshotVersion(v int64)
}
