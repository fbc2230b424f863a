package engine

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/hookrun/internal/registry"
)

// HandleMethod is the handler method middleware gates attach to.
const HandleMethod = "Handle"

// UseMethod is the gate method the runner invokes for middleware bindings.
const UseMethod = "Use"

var (
	handlerType    = reflect.TypeFor[Handler]()
	middlewareType = reflect.TypeFor[Middleware]()
	contextType    = reflect.TypeFor[context.Context]()
	errorType      = reflect.TypeFor[error]()
	runnerPtrType  = reflect.TypeFor[*Runner]()
)

// BindOption configures a declaration.
type BindOption func(*bindOptions)

type bindOptions struct {
	priority int
}

// WithPriority sets the binding priority. Higher priorities run first;
// the default is 0.
func WithPriority(p int) BindOption {
	return func(o *bindOptions) {
		o.priority = p
	}
}

// Declarer validates hook declarations and registers them into one registry.
type Declarer struct {
	reg *registry.Registry
}

// Declare returns a Declarer writing into reg.
func Declare(reg *registry.Registry) *Declarer {
	return &Declarer{reg: reg}
}

// Registry returns the registry declarations are written to.
func (d *Declarer) Registry() *registry.Registry {
	return d.reg
}

// Use declares gate as middleware on commandType's method. The method must be
// Handle: middleware observes a command through its own handle path, so any
// other method is rejected. gate must implement Middleware.
func (d *Declarer) Use(commandType reflect.Type, method string, gate reflect.Type, opts ...BindOption) error {
	if err := checkCommandType(commandType); err != nil {
		return err
	}
	if method != HandleMethod {
		return &ConfigError{
			Code:        ErrCodeNotGate,
			Message:     fmt.Sprintf("middleware can only be declared on %s, not %s", HandleMethod, method),
			CommandType: commandType,
			Observer:    gate,
		}
	}
	if gate == nil || !gate.Implements(middlewareType) {
		return &ConfigError{
			Code:        ErrCodeNotGate,
			Message:     "gate type does not implement engine.Middleware",
			CommandType: commandType,
			Observer:    gate,
			Method:      UseMethod,
		}
	}

	d.register(registry.KindMiddleware, commandType, gate, UseMethod, opts)
	return nil
}

// Before declares observer.method as a before hook of commandType.
func (d *Declarer) Before(commandType, observer reflect.Type, method string, opts ...BindOption) error {
	return d.hook(registry.KindBefore, commandType, observer, method, opts)
}

// After declares observer.method as an after hook of commandType.
func (d *Declarer) After(commandType, observer reflect.Type, method string, opts ...BindOption) error {
	return d.hook(registry.KindAfter, commandType, observer, method, opts)
}

// Bind declares a binding of any kind. For middleware, target is the command
// method the gate attaches to (must be Handle) and observer is the gate type.
// For before/after, target is the observer method.
func (d *Declarer) Bind(kind registry.Kind, commandType, observer reflect.Type, target string, opts ...BindOption) error {
	switch kind {
	case registry.KindMiddleware:
		return d.Use(commandType, target, observer, opts...)
	case registry.KindBefore, registry.KindAfter:
		return d.hook(kind, commandType, observer, target, opts)
	default:
		return fmt.Errorf("invalid binding kind %s", kind)
	}
}

// MustUse is Use that panics on error, for static registration tables.
func (d *Declarer) MustUse(commandType reflect.Type, method string, gate reflect.Type, opts ...BindOption) {
	if err := d.Use(commandType, method, gate, opts...); err != nil {
		panic(err)
	}
}

// MustBefore is Before that panics on error.
func (d *Declarer) MustBefore(commandType, observer reflect.Type, method string, opts ...BindOption) {
	if err := d.Before(commandType, observer, method, opts...); err != nil {
		panic(err)
	}
}

// MustAfter is After that panics on error.
func (d *Declarer) MustAfter(commandType, observer reflect.Type, method string, opts ...BindOption) {
	if err := d.After(commandType, observer, method, opts...); err != nil {
		panic(err)
	}
}

// Use declares middleware in the process-wide registry.
func Use(commandType reflect.Type, method string, gate reflect.Type, opts ...BindOption) error {
	return Declare(registry.Default()).Use(commandType, method, gate, opts...)
}

// Before declares a before hook in the process-wide registry.
func Before(commandType, observer reflect.Type, method string, opts ...BindOption) error {
	return Declare(registry.Default()).Before(commandType, observer, method, opts...)
}

// After declares an after hook in the process-wide registry.
func After(commandType, observer reflect.Type, method string, opts ...BindOption) error {
	return Declare(registry.Default()).After(commandType, observer, method, opts...)
}

func (d *Declarer) hook(kind registry.Kind, commandType, observer reflect.Type, method string, opts []BindOption) error {
	if err := checkCommandType(commandType); err != nil {
		return err
	}
	if observer == nil {
		return &ConfigError{
			Code:        ErrCodeMissingMethod,
			Message:     "observer type is nil",
			CommandType: commandType,
			Method:      method,
		}
	}

	m, ok := observer.MethodByName(method)
	if !ok {
		return &ConfigError{
			Code:        ErrCodeMissingMethod,
			Message:     fmt.Sprintf("%s has no exported method %s", observer, method),
			CommandType: commandType,
			Observer:    observer,
			Method:      method,
		}
	}

	// Method types obtained from a reflect.Type include the receiver.
	if err := checkHookShape(kind, m.Type, 1); err != nil {
		return &ConfigError{
			Code:        ErrCodeBadSignature,
			Message:     err.Error(),
			CommandType: commandType,
			Observer:    observer,
			Method:      method,
		}
	}

	d.register(kind, commandType, observer, method, opts)
	return nil
}

func (d *Declarer) register(kind registry.Kind, commandType, observer reflect.Type, method string, opts []BindOption) {
	var o bindOptions
	for _, opt := range opts {
		opt(&o)
	}
	d.reg.Register(registry.Binding{
		Observed: commandType,
		Observer: observer,
		Method:   method,
		Kind:     kind,
		Priority: o.priority,
	})
}

func checkCommandType(commandType reflect.Type) error {
	if commandType == nil || !commandType.Implements(handlerType) {
		return &ConfigError{
			Code:        ErrCodeNotHandler,
			Message:     "command type does not implement engine.Handler",
			CommandType: commandType,
		}
	}
	return nil
}

// hookParams returns the value parameters of a hook function type: the
// parameters after the receiver (skip) and context, minus a trailing *Runner.
func hookParams(fn reflect.Type, skip int) (params []reflect.Type, wantsRunner bool) {
	n := fn.NumIn()
	start := skip + 1
	end := n
	if end > start && fn.In(end-1) == runnerPtrType {
		wantsRunner = true
		end--
	}
	for i := start; i < end; i++ {
		params = append(params, fn.In(i))
	}
	return params, wantsRunner
}

// checkHookShape validates a hook method type. skip is 1 for method types
// taken from a reflect.Type (receiver first) and 0 for bound method values.
func checkHookShape(kind registry.Kind, fn reflect.Type, skip int) error {
	if fn.IsVariadic() {
		return fmt.Errorf("hook must not be variadic")
	}
	if fn.NumIn() <= skip || fn.In(skip) != contextType {
		return fmt.Errorf("first parameter must be context.Context")
	}
	if fn.NumOut() != 1 || fn.Out(0) != errorType {
		return fmt.Errorf("hook must return exactly one error")
	}

	params, _ := hookParams(fn, skip)
	want := 1
	shape := "(ctx, input[, *Runner]) error"
	if kind == registry.KindAfter {
		want = 2
		shape = "(ctx, input, result[, *Runner]) error"
	}
	if len(params) != want {
		return fmt.Errorf("%s hook must have shape %s, got %d value parameters", kind, shape, len(params))
	}
	return nil
}
