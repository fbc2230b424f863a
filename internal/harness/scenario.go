package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hookrun/internal/record"
)

// Scenario is one YAML test case: commands run through a real runner,
// then assertions over the recorded trace, the app's output and the final
// database state.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Manifests are CUE binding manifests applied on top of the app's own
	// bindings, relative to the scenario file.
	Manifests []string `yaml:"manifests,omitempty"`

	// Setup steps must succeed; their runs are still part of the trace.
	Setup []Step     `yaml:"setup,omitempty"`
	Flow  []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`

	// FlowToken fixes the run's flow token. Empty means "test-flow-default".
	FlowToken string `yaml:"flow_token,omitempty"`
}

// Step runs the catalog command Run with Input, which is decoded into the
// command's input type through JSON.
type Step struct {
	Run   string `yaml:"run"`
	Input any    `yaml:"input,omitempty"`
}

// FlowStep is a Step with an optional expectation. Without one the run
// must succeed.
type FlowStep struct {
	Step   `yaml:",inline"`
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes how a flow step should end. Error is a substring
// of the returned error; Result is subset-matched against the result.
type ExpectClause struct {
	Outcome string `yaml:"outcome"`
	Error   string `yaml:"error,omitempty"`
	Result  any    `yaml:"result,omitempty"`
}

// Assertion is checked after the flow. Which fields apply depends on Type:
//
//	trace_contains   Command, optional Input (subset match)
//	trace_order      Commands
//	trace_count      Command, Count
//	final_state      Table, Where, Expect
//	output_contains  Line
type Assertion struct {
	Type     string         `yaml:"type"`
	Command  string         `yaml:"command,omitempty"`
	Input    any            `yaml:"input,omitempty"`
	Table    string         `yaml:"table,omitempty"`
	Where    map[string]any `yaml:"where,omitempty"`
	Expect   map[string]any `yaml:"expect,omitempty"`
	Count    int            `yaml:"count,omitempty"`
	Commands []string       `yaml:"commands,omitempty"`
	Line     string         `yaml:"line,omitempty"`
}

const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertFinalState     = "final_state"
	AssertOutputContains = "output_contains"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected and manifest paths are made relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, m := range scenario.Manifests {
		if !filepath.IsAbs(m) {
			scenario.Manifests[i] = filepath.Join(filepath.Dir(path), m)
		}
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	switch {
	case s.Name == "":
		return fmt.Errorf("name is required")
	case s.Description == "":
		return fmt.Errorf("description is required")
	case len(s.Flow) == 0:
		return fmt.Errorf("flow list is required and must be non-empty")
	case len(s.Assertions) == 0:
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, m := range s.Manifests {
		if _, err := os.Stat(m); os.IsNotExist(err) {
			return fmt.Errorf("manifest file not found: %s", m)
		}
	}
	for i, step := range s.Setup {
		if step.Run == "" {
			return fmt.Errorf("setup[%d]: run is required", i)
		}
	}
	for i, step := range s.Flow {
		if step.Run == "" {
			return fmt.Errorf("flow[%d]: run is required", i)
		}
		if err := validateExpect(step.Expect); err != nil {
			return fmt.Errorf("flow[%d].expect: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateExpect(e *ExpectClause) error {
	if e == nil {
		return nil
	}
	switch record.Outcome(e.Outcome) {
	case record.OutcomeOK:
		if e.Error != "" {
			return fmt.Errorf("error is only valid with outcome %q", record.OutcomeError)
		}
	case record.OutcomeError:
		if e.Result != nil {
			return fmt.Errorf("result is only valid with outcome %q", record.OutcomeOK)
		}
	default:
		return fmt.Errorf("outcome must be %q or %q", record.OutcomeOK, record.OutcomeError)
	}
	return nil
}

// requirement is a field an assertion type cannot do without.
type requirement struct {
	missing func(a Assertion) bool
	msg     string
}

var assertionRequirements = map[string][]requirement{
	AssertTraceContains: {
		{func(a Assertion) bool { return a.Command == "" }, "command is required"},
	},
	AssertTraceOrder: {
		{func(a Assertion) bool { return len(a.Commands) == 0 }, "commands list is required"},
	},
	AssertTraceCount: {
		{func(a Assertion) bool { return a.Command == "" }, "command is required"},
		{func(a Assertion) bool { return a.Count < 0 }, "count must be non-negative"},
	},
	AssertFinalState: {
		{func(a Assertion) bool { return a.Table == "" }, "table is required"},
		{func(a Assertion) bool { return len(a.Expect) == 0 }, "expect is required"},
	},
	AssertOutputContains: {
		{func(a Assertion) bool { return a.Line == "" }, "line is required"},
	},
}

func validateAssertion(a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	reqs, ok := assertionRequirements[a.Type]
	if !ok {
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	for _, r := range reqs {
		if r.missing(a) {
			return fmt.Errorf("%s for %s", r.msg, a.Type)
		}
	}
	return nil
}
