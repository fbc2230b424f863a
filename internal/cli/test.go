package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hookrun/internal/harness"
)

// TestOptions are the flags of "hookrun test".
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // defaults to <scenarios-dir>/golden
}

// ScenarioResult is the verdict for one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarizes a whole test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand runs YAML scenarios against the recipes app and compares
// their traces with golden snapshots.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario harness",
		Long: `Run YAML scenarios against the recipe app.

Each scenario runs on a fresh in-memory database with a fixed flow token
and a deterministic clock. Expect clauses and assertions are checked, and
the recorded trace is compared with <golden-dir>/<scenario name>.golden
when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  hookrun test ./scenarios
  hookrun test ./scenarios --filter "create-*"
  hookrun test ./scenarios --update
  hookrun test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	if opts.GoldenDir == "" {
		opts.GoldenDir = filepath.Join(scenariosDir, "golden")
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 && opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	app := harnessApp()
	for _, file := range files {
		res := runScenario(file, app, opts, cmd)
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles walks dir for .yaml and .yml files whose base name
// matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario loads, runs and checks one scenario file. In text mode it
// prints one status line per scenario plus any failure details.
func runScenario(scenarioFile string, app harness.App, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	res := checkScenario(scenarioFile, app, opts)
	if opts.Format == "json" {
		return res
	}

	w := cmd.OutOrStdout()
	switch {
	case res.Pass && opts.Update:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", res.Name)
	case res.Pass:
		fmt.Fprintf(w, "✓ %s\n", res.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", res.Name)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return res
}

func checkScenario(scenarioFile string, app harness.App, opts *TestOptions) ScenarioResult {
	fail := func(name string, format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), "Load error: %v", err)
	}

	result, err := harness.Run(scenario, app)
	if err != nil {
		return fail(scenario.Name, "Execution error: %v", err)
	}

	if opts.Update {
		if err := updateGoldenFile(scenario, result, opts.GoldenDir); err != nil {
			return fail(scenario.Name, "Golden update error: %v", err)
		}
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	// A scenario without a golden file is checked by its assertions alone.
	goldenPath := goldenFilePath(opts.GoldenDir, scenario.Name)
	if _, err := os.Stat(goldenPath); err == nil {
		match, err := compareWithGolden(scenario, result, goldenPath)
		if err != nil {
			return fail(scenario.Name, "Golden comparison error: %v", err)
		}
		if !match {
			return fail(scenario.Name, "Golden file mismatch (run with --update to regenerate)")
		}
	}

	if !result.Pass {
		return ScenarioResult{Name: scenario.Name, Errors: result.Errors}
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// goldenFilePath returns the golden file of a scenario.
func goldenFilePath(goldenDir, scenarioName string) string {
	return filepath.Join(goldenDir, scenarioName+".golden")
}

// updateGoldenFile writes the scenario's current trace snapshot.
func updateGoldenFile(scenario *harness.Scenario, result *harness.Result, goldenDir string) error {
	if err := os.MkdirAll(goldenDir, 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	data, err := harness.Snapshot(scenario.Name, scenario.FlowToken, result)
	if err != nil {
		return err
	}
	return os.WriteFile(goldenFilePath(goldenDir, scenario.Name), data, 0o644)
}

func compareWithGolden(scenario *harness.Scenario, result *harness.Result, goldenPath string) (bool, error) {
	want, err := os.ReadFile(goldenPath)
	if err != nil {
		return false, err
	}
	got, err := harness.Snapshot(scenario.Name, scenario.FlowToken, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(response); err != nil {
		return err
	}
	return testFailure(result)
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if err := testFailure(result); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// testFailure maps failed scenarios to exit code 1.
func testFailure(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
}
