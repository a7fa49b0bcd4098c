package cqrskit

import "reflect"

// maxUpcastSteps bounds the upcast_chain loop: a well-formed set of
// upcasters converges on a terminal type in far fewer steps than this, so
// hitting the bound means the registered upcasters form a cycle.
const maxUpcastSteps = 10

// UpcastingStrategy decides when the upcasting pipeline runs relative to
// reads and writes, following the two concrete strategies of the framework
// this implements.
type UpcastingStrategy interface {
	ShouldUpcastOnRead() bool
	ShouldUpcastOnWrite() bool
	ShouldRewriteOnLoad() bool
}

// LazyUpcastingStrategy upcasts on read only; stored events are left in
// whatever version they were written in, and are upcast afresh on every
// load. This is the default: it never touches the store.
type LazyUpcastingStrategy struct{}

func (LazyUpcastingStrategy) ShouldUpcastOnRead() bool  { return true }
func (LazyUpcastingStrategy) ShouldUpcastOnWrite() bool { return false }
func (LazyUpcastingStrategy) ShouldRewriteOnLoad() bool { return false }

// EagerUpcastingStrategy upcasts on read and additionally rewrites the
// upcast result back to the store on load, so subsequent loads see
// already-current events. It is a one-way migration: once events are
// rewritten, the old upcasters registered for their original shape become
// dead code until removed.
type EagerUpcastingStrategy struct{}

func (EagerUpcastingStrategy) ShouldUpcastOnRead() bool  { return true }
func (EagerUpcastingStrategy) ShouldUpcastOnWrite() bool { return true }
func (EagerUpcastingStrategy) ShouldRewriteOnLoad() bool { return true }

// upcasterEntry holds one registered transform, type-erased so a
// heterogeneous chain of upcasters for unrelated payload types can live in
// a single map.
type upcasterEntry struct {
	toType reflect.Type
	fn     func(data any) any
}

// UpcasterFunc transforms a payload of its source shape From into the next
// shape To in its evolution. Register one per schema version transition;
// the pipeline chains them automatically.
type UpcasterFunc[From any, To any] func(From) To

// UpcasterMap is the registry of every upcaster known to an
// UpcastingPipeline, keyed by the source type each upcasts from. At most
// one upcaster may be registered per source type: a payload shape has
// exactly one next version.
type UpcasterMap struct {
	byFromType map[reflect.Type]upcasterEntry
}

// NewUpcasterMap creates an empty UpcasterMap.
func NewUpcasterMap() *UpcasterMap {
	return &UpcasterMap{byFromType: make(map[reflect.Type]upcasterEntry)}
}

// RegisterUpcaster adds fn to m, upcasting payloads of type From to type To.
// Panics if an upcaster from From is already registered.
func RegisterUpcaster[From any, To any](m *UpcasterMap, fn UpcasterFunc[From, To]) {
	fromType := typeOf[From]()
	if _, exists := m.byFromType[fromType]; exists {
		panic("cqrskit: upcaster already registered for " + fromType.String())
	}
	m.byFromType[fromType] = upcasterEntry{
		toType: typeOf[To](),
		fn: func(data any) any {
			return fn(data.(From))
		},
	}
}

// UpcastingPipeline applies a UpcasterMap's chain of transforms to events
// being read from or written to a store, according to an UpcastingStrategy.
type UpcastingPipeline struct {
	upcasters *UpcasterMap
	strategy  UpcastingStrategy
}

// NewUpcastingPipeline builds a pipeline over upcasters using strategy.
func NewUpcastingPipeline(upcasters *UpcasterMap, strategy UpcastingStrategy) *UpcastingPipeline {
	if strategy == nil {
		strategy = LazyUpcastingStrategy{}
	}
	return &UpcastingPipeline{upcasters: upcasters, strategy: strategy}
}

// upcastChain repeatedly applies the registered upcaster for data's current
// type until no further upcaster is registered for the resulting type (the
// type has stabilized), or maxUpcastSteps is exceeded, which indicates a
// cyclic chain.
func (p *UpcastingPipeline) upcastChain(data any) (any, error) {
	current := data
	for step := 0; step < maxUpcastSteps; step++ {
		entry, ok := p.upcasters.byFromType[reflect.TypeOf(current)]
		if !ok {
			return current, nil
		}
		current = entry.fn(current)
	}
	if _, ok := p.upcasters.byFromType[reflect.TypeOf(current)]; !ok {
		return current, nil
	}
	return nil, ErrUpcastCycle{PayloadType: reflect.TypeOf(data).String(), MaxSteps: maxUpcastSteps}
}

// ReadUpcast upcasts every event in events for the read path, if the
// strategy calls for it. When it upcasts, it returns a new slice and leaves
// the input unmutated; otherwise it returns events itself.
func (p *UpcastingPipeline) ReadUpcast(events []Envelope) ([]Envelope, error) {
	if !p.strategy.ShouldUpcastOnRead() {
		return events, nil
	}
	return p.upcastAll(events)
}

// WriteUpcast upcasts every event in events for the write path, if the
// strategy calls for it. Most deployments never need this: events are
// normally written already-current and only read back through old
// versions.
func (p *UpcastingPipeline) WriteUpcast(events []Envelope) ([]Envelope, error) {
	if !p.strategy.ShouldUpcastOnWrite() {
		return events, nil
	}
	return p.upcastAll(events)
}

func (p *UpcastingPipeline) upcastAll(events []Envelope) ([]Envelope, error) {
	out := make([]Envelope, len(events))
	for i, env := range events {
		upcast, err := p.upcastChain(env.Data)
		if err != nil {
			return nil, err
		}
		env.Data = upcast
		out[i] = env
	}
	return out, nil
}

// ShouldRewriteOnLoad reports whether a successful ReadUpcast should be
// persisted back to the store by the caller (EventBus.LoadEvents).
func (p *UpcastingPipeline) ShouldRewriteOnLoad() bool {
	return p.strategy.ShouldRewriteOnLoad()
}
