package engine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/hookrun/internal/record"
	"github.com/roach88/hookrun/internal/registry"
)

// DefaultMaxDepth is the default limit on nested dispatch within one flow.
// It stops a hook chain that re-dispatches itself from recursing forever.
const DefaultMaxDepth = 1000

const tracerName = "github.com/roach88/hookrun/internal/engine"

// Recorder receives a trace record at the start and end of every run.
// Recording errors are logged and never change a run's outcome.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv record.Invocation) error
	RecordCompletion(ctx context.Context, comp record.Completion) error
}

// Namer maps command types to display names for trace records.
type Namer interface {
	Name(t reflect.Type) string
}

// Runner executes commands and their hook chains.
//
// A Runner holds only configuration; all call-scoped data is passed on the
// stack or in the context. The same Runner may be used for any number of
// sequential, concurrent and nested runs.
type Runner struct {
	registry *registry.Registry
	resolver Resolver
	logger   *slog.Logger
	recorder Recorder
	namer    Namer
	flowGen  FlowTokenGenerator
	clock    SequenceClock
	tracer   trace.Tracer
	maxDepth int
}

// Option configures a Runner.
type Option func(*Runner)

// WithRegistry sets the binding registry. Default: registry.Default().
func WithRegistry(reg *registry.Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithResolver sets the instance resolver. Default: a new DefaultResolver.
func WithResolver(res Resolver) Option {
	return func(r *Runner) {
		r.resolver = res
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithRecorder enables trace recording.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithNamer sets how command types are named in trace records.
// Default: CommandName.
func WithNamer(n Namer) Option {
	return func(r *Runner) {
		r.namer = n
	}
}

// WithFlowGenerator sets the flow token generator. Default: UUIDv7Generator.
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(r *Runner) {
		r.flowGen = g
	}
}

// WithClock sets the sequence clock for trace records. Default: NewClock().
func WithClock(c SequenceClock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default: the global provider (a no-op unless the process installs one).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// WithMaxDepth sets the nested dispatch limit. Default: DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(r *Runner) {
		r.maxDepth = n
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		registry: registry.Default(),
		resolver: NewDefaultResolver(),
		logger:   slog.Default(),
		flowGen:  UUIDv7Generator{},
		clock:    NewClock(),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the runner's binding registry.
func (r *Runner) Registry() *registry.Registry {
	return r.registry
}

// Run dispatches one command: resolve the handler, run middleware and before
// hooks, invoke the handler once, run after hooks, return the result.
//
// Errors from hooks and the handler are returned unchanged. A failure in any
// phase skips every later phase. An after-hook failure is returned even though
// the handler already produced its result.
func (r *Runner) Run(ctx context.Context, commandType reflect.Type, input any) (any, error) {
	call := frame{depth: 1}
	if parent, nested := frameFrom(ctx); nested {
		call.flowToken = parent.flowToken
		call.depth = parent.depth + 1
	} else {
		call.flowToken = r.flowGen.Generate()
	}

	if call.depth > r.maxDepth {
		return nil, NewDepthError(call.flowToken, call.depth, r.maxDepth)
	}

	command := r.commandName(commandType)
	ctx, span := r.tracer.Start(ctx, "run "+command, trace.WithAttributes(
		attribute.String("hookrun.command", command),
		attribute.String("hookrun.flow", call.flowToken),
		attribute.Int("hookrun.depth", call.depth),
	))
	defer span.End()

	parentID := InvocationID(ctx)
	inv, recording := r.recordInvocation(ctx, call, parentID, command, input)
	call.invocationID = inv.ID
	ctx = withFrame(ctx, call)

	r.logger.Debug("run started",
		"command", command,
		"flow", call.flowToken,
		"depth", call.depth,
	)

	result, phase, err := r.dispatch(ctx, commandType, input)

	if recording {
		r.recordCompletion(ctx, inv, result, phase, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("run failed",
			"command", command,
			"flow", call.flowToken,
			"phase", phase,
			"error", err,
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Debug("run completed", "command", command, "flow", call.flowToken)
	return result, nil
}

// dispatch executes the phases in order and reports the failing phase.
func (r *Runner) dispatch(ctx context.Context, commandType reflect.Type, input any) (any, string, error) {
	handler, err := r.resolveHandler(ctx, commandType)
	if err != nil {
		return nil, record.PhaseResolve, err
	}

	if aware, ok := handler.(RunnerAware); ok {
		aware.SetRunner(r)
	}

	if err := r.emit(ctx, registry.KindMiddleware, commandType, input, nil); err != nil {
		return nil, record.PhaseMiddleware, err
	}
	if err := r.emit(ctx, registry.KindBefore, commandType, input, nil); err != nil {
		return nil, record.PhaseBefore, err
	}

	result, err := handler.Handle(ctx, input)
	if err != nil {
		return nil, record.PhaseHandle, err
	}

	if err := r.emit(ctx, registry.KindAfter, commandType, input, result); err != nil {
		return nil, record.PhaseAfter, err
	}

	return result, "", nil
}

func (r *Runner) resolveHandler(ctx context.Context, commandType reflect.Type) (Handler, error) {
	if commandType == nil {
		return nil, unresolvable(nil, nil)
	}

	inst, err := r.resolver.Get(ctx, commandType)
	if err != nil {
		return nil, err
	}
	if isNil(inst) {
		return nil, unresolvable(commandType, nil)
	}

	handler, ok := inst.(Handler)
	if !ok {
		return nil, &ConfigError{
			Code:        ErrCodeNotHandler,
			Message:     fmt.Sprintf("resolved %T does not implement engine.Handler", inst),
			CommandType: commandType,
		}
	}
	return handler, nil
}

// emit runs every binding of kind for commandType, serially, in registry
// order. The first failure stops the phase and is returned unchanged.
func (r *Runner) emit(ctx context.Context, kind registry.Kind, commandType reflect.Type, input, result any) error {
	for _, b := range r.registry.Lookup(kind, commandType) {
		if err := r.invokeHook(ctx, b, input, result); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) invokeHook(ctx context.Context, b registry.Binding, input, result any) error {
	ctx, span := r.tracer.Start(ctx, b.Kind.String()+" "+CommandName(b.Observer)+"."+b.Method, trace.WithAttributes(
		attribute.String("hookrun.kind", b.Kind.String()),
		attribute.Int("hookrun.priority", b.Priority),
	))
	defer span.End()

	r.logger.Debug("hook invoked",
		"kind", b.Kind.String(),
		"command", CommandName(b.Observed),
		"observer", CommandName(b.Observer),
		"method", b.Method,
		"priority", b.Priority,
	)

	err := r.callHook(ctx, b, input, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Runner) callHook(ctx context.Context, b registry.Binding, input, result any) error {
	observer, err := r.resolver.Get(ctx, b.Observer)
	if err != nil {
		return err
	}
	if isNil(observer) {
		return unresolvable(b.Observed, b.Observer)
	}

	if b.Kind == registry.KindMiddleware {
		gate, ok := observer.(Middleware)
		if !ok {
			return &ConfigError{
				Code:        ErrCodeNotGate,
				Message:     fmt.Sprintf("resolved %T does not implement engine.Middleware", observer),
				CommandType: b.Observed,
				Observer:    b.Observer,
				Method:      b.Method,
			}
		}
		return gate.Use(ctx, input, r)
	}

	method := reflect.ValueOf(observer).MethodByName(b.Method)
	if !method.IsValid() {
		return &ConfigError{
			Code:        ErrCodeMissingMethod,
			Message:     fmt.Sprintf("resolved %T has no method %s", observer, b.Method),
			CommandType: b.Observed,
			Observer:    b.Observer,
			Method:      b.Method,
		}
	}

	args, err := r.hookArgs(ctx, b, method.Type(), input, result)
	if err != nil {
		return err
	}

	out := method.Call(args)
	if errVal := out[0]; !errVal.IsNil() {
		return errVal.Interface().(error)
	}
	return nil
}

// hookArgs builds the positional arguments for a bound method value:
// ctx, input, [result], [*Runner].
func (r *Runner) hookArgs(ctx context.Context, b registry.Binding, fn reflect.Type, input, result any) ([]reflect.Value, error) {
	if err := checkHookShape(b.Kind, fn, 0); err != nil {
		return nil, &ConfigError{
			Code:        ErrCodeBadSignature,
			Message:     err.Error(),
			CommandType: b.Observed,
			Observer:    b.Observer,
			Method:      b.Method,
		}
	}

	params, wantsRunner := hookParams(fn, 0)
	values := []any{input}
	if b.Kind == registry.KindAfter {
		values = append(values, result)
	}

	args := make([]reflect.Value, 0, len(params)+2)
	args = append(args, reflect.ValueOf(ctx))
	for i, pt := range params {
		v, err := argValue(values[i], pt)
		if err != nil {
			return nil, &ConfigError{
				Code:        ErrCodeArgType,
				Message:     fmt.Sprintf("parameter %d: %v", i+1, err),
				CommandType: b.Observed,
				Observer:    b.Observer,
				Method:      b.Method,
			}
		}
		args = append(args, v)
	}
	if wantsRunner {
		args = append(args, reflect.ValueOf(r))
	}
	return args, nil
}

func argValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("got %s, want %s", rv.Type(), t)
	}
	return rv, nil
}

func (r *Runner) commandName(t reflect.Type) string {
	if r.namer != nil && t != nil {
		return r.namer.Name(t)
	}
	return CommandName(t)
}

// recordInvocation writes the invocation record. It returns false when no
// recorder is configured.
func (r *Runner) recordInvocation(ctx context.Context, call frame, parentID, command string, input any) (record.Invocation, bool) {
	if r.recorder == nil {
		return record.Invocation{}, false
	}

	inv := record.Invocation{
		FlowToken: call.flowToken,
		ParentID:  parentID,
		Command:   command,
		Input:     record.Capture(input),
		Seq:       r.clock.Next(),
		Depth:     call.depth,
	}

	id, err := record.InvocationID(inv.FlowToken, inv.ParentID, inv.Command, inv.Input, inv.Seq)
	if err != nil {
		r.logger.Error("compute invocation id", "command", command, "error", err)
		return inv, true
	}
	inv.ID = id

	if err := r.recorder.RecordInvocation(ctx, inv); err != nil {
		// Recording is observational; the run proceeds.
		r.logger.Error("record invocation",
			"id", inv.ID,
			"command", command,
			"flow", inv.FlowToken,
			"error", err,
		)
	}
	return inv, true
}

func (r *Runner) recordCompletion(ctx context.Context, inv record.Invocation, result any, phase string, runErr error) {
	comp := record.Completion{
		InvocationID: inv.ID,
		Outcome:      record.OutcomeOK,
		Seq:          r.clock.Next(),
	}
	if runErr != nil {
		comp.Outcome = record.OutcomeError
		comp.Phase = phase
		comp.Error = runErr.Error()
	} else {
		comp.Result = record.Capture(result)
	}

	id, err := record.CompletionID(comp.InvocationID, comp.Outcome, comp.Phase, comp.Result, comp.Error, comp.Seq)
	if err != nil {
		r.logger.Error("compute completion id", "invocation_id", inv.ID, "error", err)
		return
	}
	comp.ID = id

	if err := r.recorder.RecordCompletion(ctx, comp); err != nil {
		r.logger.Error("record completion",
			"id", comp.ID,
			"invocation_id", inv.ID,
			"outcome", string(comp.Outcome),
			"error", err,
		)
	}
}

// isNil reports whether v is nil or a typed nil pointer, map, slice, func,
// chan or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
