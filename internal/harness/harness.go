package harness

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/hookrun/internal/catalog"
	"github.com/roach88/hookrun/internal/engine"
	"github.com/roach88/hookrun/internal/manifest"
	"github.com/roach88/hookrun/internal/record"
	"github.com/roach88/hookrun/internal/registry"
	"github.com/roach88/hookrun/internal/store"
	"github.com/roach88/hookrun/internal/testutil"
)

// App describes the system under test.
type App struct {
	// Catalog names the app's commands and observers.
	Catalog *catalog.Catalog

	// Register declares the app's own bindings.
	Register func(d *engine.Declarer) error

	// Build creates the resolver for one scenario. db is the scenario's
	// database; everything the app prints should go to out.
	Build func(ctx context.Context, db *sql.DB, out io.Writer) (engine.Resolver, error)
}

// Harness is the test execution engine for one scenario.
// It runs commands with a deterministic clock and flow token.
type Harness struct {
	app       App
	store     *store.Store
	runner    *engine.Runner
	flowToken string
	logger    *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Create fresh in-memory database and registry
// 2. Register the app's bindings and apply the scenario's manifests
// 3. Execute setup steps
// 4. Execute flow steps with expect validation
// 5. Read back the recorded trace and evaluate assertions
func Run(scenario *Scenario, app App) (*Result, error) {
	if app.Catalog == nil || app.Build == nil {
		return nil, fmt.Errorf("app needs a catalog and a build function")
	}

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	reg := registry.New()
	if app.Register != nil {
		if err := app.Register(engine.Declare(reg)); err != nil {
			return nil, fmt.Errorf("register app bindings: %w", err)
		}
	}
	for _, path := range scenario.Manifests {
		m, err := manifest.Load(path)
		if err != nil {
			return nil, err
		}
		if _, err := m.Apply(app.Catalog, reg); err != nil {
			return nil, fmt.Errorf("apply %s: %w", path, err)
		}
	}

	out := &bytes.Buffer{}
	resolver, err := app.Build(ctx, st.DB(), out)
	if err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}

	// Initialize deterministic helpers
	clock := testutil.NewDeterministicClock()
	flowGen := testutil.NewFixedFlowGenerator(scenario.FlowToken)
	logger := slog.New(slog.DiscardHandler)

	h := &Harness{
		app:   app,
		store: st,
		runner: engine.New(
			engine.WithRegistry(reg),
			engine.WithResolver(resolver),
			engine.WithRecorder(st),
			engine.WithNamer(app.Catalog),
			engine.WithFlowGenerator(flowGen),
			engine.WithClock(clock),
			engine.WithLogger(logger),
		),
		flowToken: flowGen.Generate(),
		logger:    logger,
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	events, err := st.ReadTimeline(ctx, h.flowToken)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	for _, e := range events {
		if err := result.AddEvent(e); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
	}
	result.Output = splitLines(out.String())

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSetup runs all setup steps. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		if _, err := h.run(ctx, step); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Run, err)
		}
		h.logger.Info("setup step completed", "step", i, "command", step.Run)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses. Mismatches
// are added to result; only harness failures are returned.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		out, err := h.run(ctx, step.Step)
		if engine.IsConfigError(err) && !engine.HasConfigCode(err, engine.ErrCodeArgType) {
			// Wiring mistakes are harness failures, not expected outcomes.
			return fmt.Errorf("flow step %d (%s): %w", i, step.Run, err)
		}

		if msg := checkExpect(step, out, err); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Run, msg))
		}

		h.logger.Info("flow step completed",
			"step", i,
			"command", step.Run,
			"error", err,
		)
	}
	return nil
}

func (h *Harness) run(ctx context.Context, step Step) (any, error) {
	cmd, ok := h.app.Catalog.Command(step.Run)
	if !ok {
		return nil, fmt.Errorf("unknown command %q", step.Run)
	}

	var raw []byte
	if step.Input != nil {
		var err error
		raw, err = json.Marshal(step.Input)
		if err != nil {
			return nil, fmt.Errorf("encode input: %w", err)
		}
	}
	input, err := h.app.Catalog.DecodeInput(step.Run, raw)
	if err != nil {
		return nil, err
	}

	return h.runner.Run(ctx, cmd.Type, input)
}

// checkExpect compares a run against its expect clause and returns a
// mismatch description, or "" when it matches.
func checkExpect(step FlowStep, out any, runErr error) string {
	expect := step.Expect
	if expect == nil || expect.Outcome == string(record.OutcomeOK) {
		if runErr != nil {
			return fmt.Sprintf("expected outcome ok, got error: %v", runErr)
		}
		if expect == nil || expect.Result == nil {
			return ""
		}
		actual, err := normalize(out)
		if err != nil {
			return err.Error()
		}
		want, err := normalize(expect.Result)
		if err != nil {
			return err.Error()
		}
		if !subsetMatch(actual, want) {
			return fmt.Sprintf("result %s does not match expected %s", record.Capture(out), record.Capture(expect.Result))
		}
		return ""
	}

	if runErr == nil {
		return fmt.Sprintf("expected outcome error, got ok with result %s", record.Capture(out))
	}
	if expect.Error != "" && !strings.Contains(runErr.Error(), expect.Error) {
		return fmt.Sprintf("expected error containing %q, got %q", expect.Error, runErr.Error())
	}
	return ""
}

// normalize converts a Go or YAML value to the generic form captured values
// decode to, so the two can be compared.
func normalize(v any) (any, error) {
	return record.Decode(record.Capture(v))
}

func decodeCaptured(raw json.RawMessage) (any, error) {
	return record.Decode(raw)
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
