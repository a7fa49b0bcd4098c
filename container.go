package cqrskit

import (
	"fmt"
	"reflect"
	"sort"
)

// Container is a singleton type-to-instance dependency injection registry,
// the Go expression of the framework's DependencyContainer: auto-wired
// constructor injection by inspecting a factory's parameter types, with
// lazy, memoized resolution and a topological ResolveAll for building an
// entire application graph at startup. Builder uses explicit
// constructor calls for its own wiring (idiomatic Go, and the teacher's own
// examples never reach for reflection-based DI); Container exists
// alongside it for applications that want to register backends,
// middleware, or processors as swappable, type-keyed defaults the way the
// framework's own builder does ("registers defaults, then lets later
// registrations override them").
//
// Registering the same type twice overrides the previous registration,
// matching the source's override-for-defaults behaviour; it is not an
// error the way re-registering a command handler on a Router is.
type Container struct {
	instances map[reflect.Type]any
	factories map[reflect.Type]reflect.Value
}

// NewContainer creates an empty Container.
func NewContainer() *Container {
	return &Container{
		instances: make(map[reflect.Type]any),
		factories: make(map[reflect.Type]reflect.Value),
	}
}

// RegisterInstance registers value as the resolved instance for type T,
// bypassing factory resolution entirely.
func RegisterInstance[T any](c *Container, value T) {
	t := typeOf[T]()
	delete(c.factories, t)
	c.instances[t] = value
}

// RegisterFactory registers factory as the constructor for type T.
// factory's parameters are resolved recursively from the container when T
// is first resolved (by Resolve or ResolveAll); its single return value
// must assignable to T. factory is not invoked until something resolves T.
func RegisterFactory[T any](c *Container, factory any) {
	t := typeOf[T]()
	fv := reflect.ValueOf(factory)
	if fv.Kind() != reflect.Func {
		panic(fmt.Sprintf("cqrskit: RegisterFactory for %s requires a function, got %T", t, factory))
	}
	delete(c.instances, t)
	c.factories[t] = fv
}

// Resolve returns the instance registered or built for type T, building it
// (and recursively, anything it depends on) on first access and caching
// the result for subsequent calls.
func Resolve[T any](c *Container) (T, error) {
	t := typeOf[T]()
	raw, err := c.resolve(t)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := raw.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cqrskit: resolved value for %s has unexpected type %T", t, raw)
	}
	return typed, nil
}

// TryResolve is Resolve without the error: it reports ok=false instead of
// an error if T is not registered or fails to build, for optional
// dependencies that fall back to an in-process default.
func TryResolve[T any](c *Container) (value T, ok bool) {
	resolved, err := Resolve[T](c)
	if err != nil {
		return value, false
	}
	return resolved, true
}

func (c *Container) resolve(t reflect.Type) (any, error) {
	if instance, ok := c.instances[t]; ok {
		return instance, nil
	}
	factory, ok := c.factories[t]
	if !ok {
		return nil, fmt.Errorf("cqrskit: dependency %s not registered", t)
	}
	instance, err := c.build(t, factory)
	if err != nil {
		return nil, err
	}
	c.instances[t] = instance
	delete(c.factories, t)
	return instance, nil
}

func (c *Container) build(t reflect.Type, factory reflect.Value) (any, error) {
	ft := factory.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		paramType := ft.In(i)
		dep, err := c.resolve(paramType)
		if err != nil {
			return nil, fmt.Errorf("cqrskit: building %s: %w", t, err)
		}
		args[i] = reflect.ValueOf(dep)
	}
	out := factory.Call(args)
	if len(out) == 0 {
		return nil, fmt.Errorf("cqrskit: factory for %s returned no value", t)
	}
	if len(out) == 2 {
		if errVal, ok := out[1].Interface().(error); ok && errVal != nil {
			return nil, fmt.Errorf("cqrskit: factory for %s failed: %w", t, errVal)
		}
	}
	return out[0].Interface(), nil
}

// ResolveAll builds every registered factory in dependency order: a
// factory whose parameter types are all already satisfied (by a prior
// RegisterInstance or an already-resolved factory) is resolved, repeating
// until a pass makes no further progress. A parameter type that was never
// registered does not hold a factory back: resolving that factory fails
// with a "not registered" error naming the missing dependency, and
// ResolveAll returns that error. When a pass makes no progress (the
// remaining factories wait on each other in a cycle), it returns a
// diagnostic error naming every factory left unresolved.
func (c *Container) ResolveAll() error {
	remaining := make(map[reflect.Type]reflect.Value, len(c.factories))
	for t, f := range c.factories {
		remaining[t] = f
	}

	for len(remaining) > 0 {
		progressed := false
		for t, factory := range remaining {
			if !c.dependenciesSatisfied(factory.Type()) {
				continue
			}
			if _, err := c.resolve(t); err != nil {
				return err
			}
			delete(remaining, t)
			progressed = true
		}
		if !progressed {
			return c.unresolvedError(remaining)
		}
	}
	return nil
}

func (c *Container) dependenciesSatisfied(ft reflect.Type) bool {
	for i := 0; i < ft.NumIn(); i++ {
		paramType := ft.In(i)
		if _, ok := c.instances[paramType]; ok {
			continue
		}
		if _, ok := c.factories[paramType]; !ok {
			// Not registered at all: resolve() will surface this as a
			// clear "not registered" error rather than a circularity.
			continue
		}
		return false
	}
	return true
}

func (c *Container) unresolvedError(remaining map[reflect.Type]reflect.Value) error {
	names := make([]string, 0, len(remaining))
	for t := range remaining {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return fmt.Errorf("cqrskit: cannot resolve dependency graph, unresolved or circular: %v", names)
}
