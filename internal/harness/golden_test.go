package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario, recipesApp())
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/create_recipe.yaml")
	require.NoError(t, err)

	result, err := Run(scenario, recipesApp())
	require.NoError(t, err)

	// The scenario has no flow_token, so the snapshot matches the one
	// RunWithGolden writes.
	require.NoError(t, AssertGolden(t, scenario.Name, result))
}

func TestSnapshot_CanonicalJSON(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Type: "invocation", Command: "Notify", Seq: 1, Depth: 1, Input: "hi <b>"},
		{Type: "completion", Command: "Notify", Seq: 2, Outcome: "ok"},
	}
	result.Output = []string{"hi <b>"}

	got, err := Snapshot("snap", "flow-1", result)
	require.NoError(t, err)

	// Sorted keys, no whitespace, no HTML escaping, empty phase omitted.
	want := `{"flow_token":"flow-1","output":["hi <b>"],"scenario_name":"snap","trace":[` +
		`{"command":"Notify","depth":1,"input":"hi <b>","seq":1,"type":"invocation"},` +
		`{"command":"Notify","outcome":"ok","seq":2,"type":"completion"}]}`
	assert.Equal(t, want, string(got))

	again, err := Snapshot("snap", "flow-1", result)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestSnapshot_ErrorCompletion(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Type: "completion", Command: "CreateRecipe", Seq: 2, Outcome: "error", Phase: "middleware", Error: "denied"},
	}

	got, err := Snapshot("err", "", result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.NotContains(t, decoded, "flow_token")
	event := decoded["trace"].([]any)[0].(map[string]any)
	assert.Equal(t, "middleware", event["phase"])
	assert.Equal(t, "denied", event["error"])
	assert.NotContains(t, event, "result")
	assert.Equal(t, []any{}, decoded["output"])
}
