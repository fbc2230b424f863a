package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
)

// Kind identifies the phase a binding observes.
type Kind int

const (
	// KindMiddleware gates the handler; a failure aborts the dispatch.
	KindMiddleware Kind = iota + 1
	// KindBefore runs before the handler with the command input.
	KindBefore
	// KindAfter runs after a successful handler with input and result.
	KindAfter
)

// Kinds lists every kind in phase order.
var Kinds = []Kind{KindMiddleware, KindBefore, KindAfter}

func (k Kind) String() string {
	switch k {
	case KindMiddleware:
		return "middleware"
	case KindBefore:
		return "before"
	case KindAfter:
		return "after"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown binding kind %q: must be one of middleware, before, after", s)
}

// Binding associates an observer method with a command type and phase.
// Bindings are values; once registered they are never modified.
type Binding struct {
	// Observed is the command type (handler type) being observed.
	Observed reflect.Type

	// Observer is the type whose method is invoked. It is resolved through
	// the runner's resolver, like handlers.
	Observer reflect.Type

	// Method is the exported method name invoked on the observer.
	Method string

	Kind     Kind
	Priority int

	// Seq is the registration sequence number within the registry.
	Seq int64
}

// String renders the binding for logs and listings.
func (b Binding) String() string {
	return fmt.Sprintf("%s %s -> %s.%s (priority %d)", b.Kind, typeName(b.Observed), typeName(b.Observer), b.Method, b.Priority)
}

// Registry holds bindings partitioned by kind, each partition keyed by the
// observed command type.
//
// Thread-safety: lookups may run concurrently with each other. Register and
// Clear take the write lock, but clearing while dispatches are in flight
// yields an undefined mix of old and new bindings.
type Registry struct {
	mu       sync.RWMutex
	seq      int64
	bindings map[Kind]map[reflect.Type][]Binding
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	r.reset()
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first access.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

func (r *Registry) reset() {
	r.bindings = make(map[Kind]map[reflect.Type][]Binding, len(Kinds))
	for _, k := range Kinds {
		r.bindings[k] = make(map[reflect.Type][]Binding)
	}
}

// Register adds b to the list for (b.Observed, b.Kind) and returns the stored
// binding with its sequence number assigned.
//
// The new binding is placed before every existing binding whose priority is
// lower than or equal to its own, which keeps the list priority-descending
// with the newest binding first among equals.
func (r *Registry) Register(b Binding) Binding {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	b.Seq = r.seq

	partition, ok := r.bindings[b.Kind]
	if !ok {
		panic(fmt.Sprintf("registry: invalid binding kind %d", int(b.Kind)))
	}

	list := partition[b.Observed]
	idx := slices.IndexFunc(list, func(existing Binding) bool {
		return existing.Priority <= b.Priority
	})
	if idx < 0 {
		idx = len(list)
	}
	partition[b.Observed] = slices.Insert(list, idx, b)

	slog.Debug("binding registered",
		"kind", b.Kind.String(),
		"command", typeName(b.Observed),
		"observer", typeName(b.Observer),
		"method", b.Method,
		"priority", b.Priority,
		"seq", b.Seq,
	)

	return b
}

// Lookup returns the bindings of kind observing commandType, in execution
// order. The result is a copy; it is empty (never nil) when nothing is
// registered.
func (r *Registry) Lookup(kind Kind, commandType reflect.Type) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.bindings[kind][commandType]
	out := make([]Binding, len(list))
	copy(out, list)
	return out
}

// Len returns the total number of registered bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, partition := range r.bindings {
		for _, list := range partition {
			n += len(list)
		}
	}
	return n
}

// All returns every binding, grouped by kind in phase order, then by command
// type name, each group in execution order.
func (r *Registry) All() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Binding
	for _, k := range Kinds {
		partition := r.bindings[k]
		types := make([]reflect.Type, 0, len(partition))
		for t := range partition {
			types = append(types, t)
		}
		slices.SortFunc(types, func(a, b reflect.Type) int {
			switch an, bn := typeName(a), typeName(b); {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		})
		for _, t := range types {
			out = append(out, partition[t]...)
		}
	}
	if out == nil {
		out = []Binding{}
	}
	return out
}

// Clear removes every binding from all partitions. The sequence counter is
// not reset, so sequence numbers stay unique for the registry's lifetime.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
