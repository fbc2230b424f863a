package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/hookrun/internal/record"
)

// GoldenDir holds the snapshots RunWithGolden and AssertGolden compare
// against, relative to the test's package.
const GoldenDir = "testdata/golden"

// object is a JSON object under construction.
type object map[string]any

func (o object) setIf(cond bool, key string, v any) {
	if cond {
		o[key] = v
	}
}

// snapshotEvent is the golden form of a TraceEvent. Invocations carry depth
// and input; completions carry outcome, phase, result and error.
func snapshotEvent(e TraceEvent) map[string]any {
	ev := object{"type": e.Type, "seq": e.Seq, "command": e.Command}
	if e.Type == "invocation" {
		ev["depth"] = e.Depth
		ev.setIf(e.Input != nil, "input", e.Input)
		return ev
	}
	ev["outcome"] = e.Outcome
	ev.setIf(e.Phase != "", "phase", e.Phase)
	ev.setIf(e.Result != nil, "result", e.Result)
	ev.setIf(e.Error != "", "error", e.Error)
	return ev
}

// Snapshot renders result as canonical JSON: sorted keys, no whitespace and
// no record IDs, so equal runs produce equal bytes. An empty flowToken is
// omitted.
func Snapshot(scenarioName, flowToken string, result *Result) ([]byte, error) {
	events := make([]any, 0, len(result.Trace))
	for _, e := range result.Trace {
		events = append(events, snapshotEvent(e))
	}
	output := make([]any, 0, len(result.Output))
	for _, line := range result.Output {
		output = append(output, line)
	}

	doc := object{
		"scenario_name": scenarioName,
		"trace":         events,
		"output":        output,
	}
	doc.setIf(flowToken != "", "flow_token", flowToken)
	return record.MarshalCanonical(map[string]any(doc))
}

// RunWithGolden runs scenario and compares its snapshot with
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, app App) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, app)
	if err != nil {
		return nil, err
	}
	if err := assertSnapshot(t, scenario.Name, scenario.FlowToken, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file. The
// snapshot is taken without a flow token.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertSnapshot(t, scenarioName, "", result)
}

func assertSnapshot(t *testing.T, name, flowToken string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, flowToken, result)
	if err != nil {
		return err
	}
	goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, name, data)
	return nil
}
