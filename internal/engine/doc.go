// Package engine implements the command runner.
//
// A command type is the reflect.Type of its handler (conventionally a pointer
// type such as *recipes.CreateRecipe). Runner.Run resolves the handler through
// a Resolver, then executes the dispatch protocol:
//
//  1. Resolve the handler instance (cached by the resolver).
//  2. Inject the runner into handlers implementing RunnerAware.
//  3. Middleware: each bound gate's Use method, serially. A failure aborts.
//  4. Before: each bound before hook, serially, with the (shared) input.
//  5. Handle: exactly one call to the handler.
//  6. After: each bound after hook, serially, with input and result.
//  7. Return the handler's result.
//
// Hook order within a phase is the registry's stored order. Errors from hooks
// and handlers are returned unchanged so callers can match them with
// errors.Is / errors.As. An after-hook failure is returned even though the
// handler already ran; its side effects are not undone.
//
// # Re-entrancy
//
// Hooks and handlers may call Run again on the same runner. The runner keeps
// no per-call state: the flow token, parent invocation and nesting depth travel
// in the context.Context, everything else on the stack. Nested runs complete
// their whole phase sequence before control returns to the caller.
//
// # Declarations
//
// Bindings are declared through a Declarer (Use, Before, After) during
// initialization. Declarations are validated immediately: a middleware declared
// on anything but a handler's Handle method, a missing method, or a method
// with the wrong shape is a ConfigError at declaration time.
//
// Hook method shapes:
//
//	before: func(ctx context.Context, input T) error
//	before: func(ctx context.Context, input T, r *engine.Runner) error
//	after:  func(ctx context.Context, input T, result R) error
//	after:  func(ctx context.Context, input T, result R, r *engine.Runner) error
//
// Middleware gates implement the Middleware interface.
package engine
