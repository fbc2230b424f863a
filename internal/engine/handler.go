package engine

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// Handler executes one command type: exactly one input, exactly one output.
type Handler interface {
	Handle(ctx context.Context, input any) (any, error)
}

// RunnerAware is implemented by handlers that dispatch further commands.
// The runner calls SetRunner with itself before every Handle call.
type RunnerAware interface {
	SetRunner(r *Runner)
}

// Middleware is implemented by gate types bound with Declarer.Use. A non-nil
// error rejects the dispatch before any before hook or the handler runs.
type Middleware interface {
	Use(ctx context.Context, input any, r *Runner) error
}

// BaseHandler can be embedded in handlers to gain sub-dispatch through the
// runner that invoked them.
//
//	type CreateRecipe struct {
//	    engine.BaseHandler
//	    repo *Repository
//	}
//
//	func (h *CreateRecipe) Handle(ctx context.Context, input any) (any, error) {
//	    ...
//	    _, err := h.Run(ctx, NotifyType, "created")
//	}
//
// Thread-safety: the runner reference is stored atomically, so concurrent
// dispatches of the same handler are safe.
type BaseHandler struct {
	runner atomic.Pointer[Runner]
}

// SetRunner implements RunnerAware.
func (h *BaseHandler) SetRunner(r *Runner) {
	h.runner.Store(r)
}

// Runner returns the injected runner, or nil before the first dispatch.
func (h *BaseHandler) Runner() *Runner {
	return h.runner.Load()
}

// Run dispatches commandType through the injected runner, running its full
// hook chain. Returns ErrNoRunner if no runner was injected yet.
func (h *BaseHandler) Run(ctx context.Context, commandType reflect.Type, input any) (any, error) {
	r := h.runner.Load()
	if r == nil {
		return nil, ErrNoRunner
	}
	return r.Run(ctx, commandType, input)
}

// CommandType returns the command type for handler type T.
//
//	engine.CommandType[*CreateRecipe]()
func CommandType[T Handler]() reflect.Type {
	return reflect.TypeFor[T]()
}

// CommandName returns the default display name of a command type: the type
// name without the pointer marker, e.g. "recipes.CreateRecipe".
func CommandName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return strings.TrimLeft(t.String(), "*")
}

// Dispatch runs commandType and converts its result to Out.
// A nil result yields Out's zero value.
func Dispatch[Out any](ctx context.Context, r *Runner, commandType reflect.Type, input any) (Out, error) {
	var zero Out
	res, err := r.Run(ctx, commandType, input)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	out, ok := res.(Out)
	if !ok {
		return zero, &ConfigError{
			Code:        ErrCodeArgType,
			Message:     fmt.Sprintf("result is %T, want %s", res, reflect.TypeFor[Out]()),
			CommandType: commandType,
		}
	}
	return out, nil
}

// As converts a handler input to T, for handlers that accept one input type.
// A nil input yields T's zero value.
func As[T any](input any) (T, error) {
	var zero T
	if input == nil {
		return zero, nil
	}
	v, ok := input.(T)
	if !ok {
		return zero, &ConfigError{
			Code:    ErrCodeArgType,
			Message: fmt.Sprintf("input is %T, want %s", input, reflect.TypeFor[T]()),
		}
	}
	return v, nil
}
