package engine

import "context"

// frame is the call-scoped state of one run. It travels in the context so
// the runner itself stays free of per-call state.
type frame struct {
	flowToken    string
	invocationID string
	depth        int
}

type frameKey struct{}

func withFrame(ctx context.Context, f frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func frameFrom(ctx context.Context) (frame, bool) {
	f, ok := ctx.Value(frameKey{}).(frame)
	return f, ok
}

// FlowToken returns the flow token of the run executing in ctx.
func FlowToken(ctx context.Context) (string, bool) {
	f, ok := frameFrom(ctx)
	if !ok {
		return "", false
	}
	return f.flowToken, true
}

// InvocationID returns the recorded invocation ID of the run executing in
// ctx. It is empty when the runner has no recorder.
func InvocationID(ctx context.Context) string {
	f, _ := frameFrom(ctx)
	return f.invocationID
}

// Depth returns the nesting depth of the run executing in ctx: 1 for a
// top-level run, 0 outside any run.
func Depth(ctx context.Context) int {
	f, _ := frameFrom(ctx)
	return f.depth
}
