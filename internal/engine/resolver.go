package engine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Resolver produces the instance for a handler or observer type.
//
// Implementations must return the same instance for the same type across
// calls (cache-by-type). A nil instance with a nil error means the type is not
// resolvable; the runner treats that as a ConfigError. A non-nil error is
// returned to the Run caller unchanged.
type Resolver interface {
	Get(ctx context.Context, t reflect.Type) (any, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, t reflect.Type) (any, error)

// Get implements Resolver.
func (f ResolverFunc) Get(ctx context.Context, t reflect.Type) (any, error) {
	return f(ctx, t)
}

// Initializer is implemented by types that need setup after the
// DefaultResolver allocates them. Init runs once per instance.
type Initializer interface {
	Init(ctx context.Context) error
}

// DefaultResolver constructs one instance per pointer type with reflect.New,
// caches it and never evicts. Non-pointer types are not resolvable.
//
// Thread-safety: safe for concurrent use.
type DefaultResolver struct {
	mu        sync.Mutex
	instances map[reflect.Type]any
}

// NewDefaultResolver creates an empty DefaultResolver.
func NewDefaultResolver() *DefaultResolver {
	return &DefaultResolver{instances: make(map[reflect.Type]any)}
}

// Get implements Resolver.
func (d *DefaultResolver) Get(ctx context.Context, t reflect.Type) (any, error) {
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if inst, ok := d.instances[t]; ok {
		return inst, nil
	}

	inst := reflect.New(t.Elem()).Interface()
	if init, ok := inst.(Initializer); ok {
		if err := init.Init(ctx); err != nil {
			return nil, fmt.Errorf("init %s: %w", t, err)
		}
	}
	d.instances[t] = inst

	slog.Debug("instance constructed", "type", t.String())
	return inst, nil
}

// Len returns the number of cached instances.
func (d *DefaultResolver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.instances)
}
