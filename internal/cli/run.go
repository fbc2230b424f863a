package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hookrun/internal/engine"
	"github.com/roach88/hookrun/internal/record"
	"github.com/roach88/hookrun/internal/store"
)

// DefaultDatabase is the trace database used when --db is not given.
const DefaultDatabase = "hookrun.db"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Input    string

	// FlowGenerator allows overriding the flow token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	FlowGenerator engine.FlowTokenGenerator
}

// RunResult is the payload of a successful run.
type RunResult struct {
	Command   string          `json:"command"`
	FlowToken string          `json:"flow_token"`
	Result    json.RawMessage `json:"result"`
	Output    []string        `json:"output"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <command>",
		Short: "Dispatch one command",
		Long: `Dispatch one command of the recipe app through its middleware, before
and after hooks. The invocation, every nested dispatch and their
completions are recorded in the SQLite database under a new flow token.

Examples:
  hookrun run GetRecipes
  hookrun run CreateRecipe --input '{"title":"Soup"}'
  hookrun run CreateRecipe --input '{"title":"Soup"}' --manifest bindings.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", DefaultDatabase, "path to SQLite database")
	cmd.Flags().StringVar(&opts.Input, "input", "", "command input as JSON")

	return cmd
}

func runCommand(opts *RunOptions, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	flowGen := opts.FlowGenerator
	if flowGen == nil {
		flowGen = engine.UUIDv7Generator{}
	}
	flowToken := flowGen.Generate()

	out := &bytes.Buffer{}
	rt, err := newAppRuntime(ctx, opts.RootOptions, st, out, engine.NewFixedGenerator(flowToken), logger)
	if err != nil {
		_ = formatter.Error(ErrCodeManifest, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to set up app", err)
	}

	command, ok := rt.catalog.Command(name)
	if !ok {
		names := make([]string, 0)
		for _, c := range rt.catalog.Commands() {
			names = append(names, c.Name)
		}
		_ = formatter.Error(ErrCodeUnknownCmd, fmt.Sprintf("unknown command %q", name), map[string]any{"commands": names})
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown command %q", name))
	}

	var raw []byte
	if opts.Input != "" {
		raw = []byte(opts.Input)
	}
	input, err := rt.catalog.DecodeInput(name, raw)
	if err != nil {
		_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --input", err)
	}

	logger.Info("dispatching", "command", name, "flow", flowToken, "db", opts.Database)
	result, err := rt.runner.Run(ctx, command.Type, input)
	lines := outputLines(out.String())
	if err != nil {
		details := map[string]any{"flow_token": flowToken, "output": lines}
		if engine.IsConfigError(err) {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), details)
			return WrapExitError(ExitCommandError, "dispatch misconfigured", err)
		}
		_ = formatter.Error(ErrCodeDispatch, err.Error(), details)
		return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", name), err)
	}
	logger.Info("dispatched", "command", name, "flow", flowToken)

	res := RunResult{
		Command:   name,
		FlowToken: flowToken,
		Result:    record.Capture(result),
		Output:    lines,
	}
	if opts.Format == "json" {
		return formatter.Success(res)
	}

	w := cmd.OutOrStdout()
	for _, line := range res.Output {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "flow:   %s\n", res.FlowToken)
	fmt.Fprintf(w, "result: %s\n", res.Result)
	return nil
}

func outputLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
