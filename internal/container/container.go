// Package container provides an engine.Resolver backed by a go.uber.org/dig
// dependency-injection container.
//
// Handlers and observers are registered as constructors. Their own
// collaborators are constructor parameters, so the container wires the full
// object graph once and the runner sees only finished instances:
//
//	c := container.New()
//	c.MustProvide(func() *Logger { return &Logger{} })
//	c.MustProvide(func(l *Logger) *Greet { return &Greet{log: l} })
//	r := engine.New(engine.WithResolver(c))
package container

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/dig"
)

var errorType = reflect.TypeFor[error]()

// Container resolves instances from constructors. Every type is built at most
// once per Container. Types that no constructor provides resolve to nil.
//
// Thread-safety: safe for concurrent use.
type Container struct {
	mu       sync.Mutex
	dig      *dig.Container
	provided map[reflect.Type]bool
}

// New creates an empty Container.
func New() *Container {
	return &Container{
		dig:      dig.New(),
		provided: make(map[reflect.Type]bool),
	}
}

// Provide registers a constructor. Each non-error result type becomes
// resolvable.
func (c *Container) Provide(constructor any, opts ...dig.ProvideOption) error {
	ct := reflect.TypeOf(constructor)
	if ct == nil || ct.Kind() != reflect.Func {
		return fmt.Errorf("constructor must be a function, got %T", constructor)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dig.Provide(constructor, opts...); err != nil {
		return fmt.Errorf("provide %s: %w", ct, err)
	}
	for i := 0; i < ct.NumOut(); i++ {
		if out := ct.Out(i); out != errorType {
			c.provided[out] = true
		}
	}
	return nil
}

// MustProvide is Provide that panics on error.
func (c *Container) MustProvide(constructor any, opts ...dig.ProvideOption) {
	if err := c.Provide(constructor, opts...); err != nil {
		panic(err)
	}
}

// Supply registers an already-built value as the instance for its type.
func (c *Container) Supply(v any) error {
	t := reflect.TypeOf(v)
	if t == nil {
		return fmt.Errorf("cannot supply untyped nil")
	}
	fn := reflect.MakeFunc(reflect.FuncOf(nil, []reflect.Type{t}, false), func([]reflect.Value) []reflect.Value {
		return []reflect.Value{reflect.ValueOf(v)}
	})
	return c.Provide(fn.Interface())
}

// Get implements engine.Resolver. A constructor error is returned as the
// constructor reported it, without dig's wrapping.
func (c *Container) Get(ctx context.Context, t reflect.Type) (any, error) {
	if t == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.provided[t] {
		return nil, nil
	}

	var inst any
	fn := reflect.MakeFunc(reflect.FuncOf([]reflect.Type{t}, nil, false), func(args []reflect.Value) []reflect.Value {
		inst = args[0].Interface()
		return nil
	})
	if err := c.dig.Invoke(fn.Interface()); err != nil {
		return nil, dig.RootCause(err)
	}
	return inst, nil
}

// Has reports whether some constructor provides t.
func (c *Container) Has(t reflect.Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provided[t]
}
