package cqrskit

import (
	"context"
	"fmt"
	"sync"
)

// Application is the composition root: it wires a CommandBus, QueryBus,
// and a set of named ProcessorExecutor/EventProcessor pairs into one
// object with a single Run/Shutdown lifecycle, the same way the teacher's
// examples wire a store and a distributor together in main() but gathered
// behind one builder instead of repeated ad-hoc setup.
type Application struct {
	Commands *CommandBus
	Queries  *QueryBus

	processors []namedProcessor

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

type namedProcessor struct {
	name     string
	executor *ProcessorExecutor
	proc     EventProcessor
	sub      Subscription
}

// Builder accumulates an Application's components before Build finalizes
// it. Using a builder rather than a struct literal lets AddProcessor be
// called a variable number of times from setup code without an
// intermediate slice the caller has to manage themselves.
type Builder struct {
	commands   *CommandBus
	queries    *QueryBus
	processors []namedProcessor
}

// NewBuilder starts a Builder around the given CommandBus and QueryBus,
// both of which must already be fully configured (all middleware and
// routes registered) since Builder performs no further wiring on them.
func NewBuilder(commands *CommandBus, queries *QueryBus) *Builder {
	return &Builder{commands: commands, queries: queries}
}

// AddProcessor registers a background EventProcessor to be run by its
// ProcessorExecutor against sub once the Application starts. name must be
// unique across the application; it identifies the processor in the error
// Run returns when that processor fails.
func (b *Builder) AddProcessor(name string, executor *ProcessorExecutor, proc EventProcessor, sub Subscription) *Builder {
	b.processors = append(b.processors, namedProcessor{name: name, executor: executor, proc: proc, sub: sub})
	return b
}

// Build validates the accumulated configuration and returns the finished
// Application. It fails fast on duplicate processor names so a
// misconfigured application is caught at startup rather than silently
// running two processors under one name.
func (b *Builder) Build() (*Application, error) {
	seen := make(map[string]bool, len(b.processors))
	for _, p := range b.processors {
		if seen[p.name] {
			return nil, fmt.Errorf("cqrskit: duplicate processor name %q", p.name)
		}
		seen[p.name] = true
	}
	return &Application{
		Commands:   b.commands,
		Queries:    b.queries,
		processors: b.processors,
	}, nil
}

// Run starts every registered processor's executor on its own goroutine
// and blocks until ctx is cancelled or Shutdown is called, whichever comes
// first. The first processor to return a non-nil error (other than
// context cancellation) triggers shutdown of the rest.
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("cqrskit: application already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.mu.Unlock()

	errs := make(chan error, len(a.processors))
	for _, p := range a.processors {
		p := p
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := p.executor.Run(runCtx, p.proc, p.sub); err != nil && runCtx.Err() == nil {
				errs <- fmt.Errorf("cqrskit: processor %q stopped: %w", p.name, err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case err := <-errs:
		cancel()
		<-done
		return err
	case <-runCtx.Done():
		<-done
		return nil
	}
}

// Shutdown stops every running processor and waits for them to exit.
func (a *Application) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
