package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookrun/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: "invocation", Command: "CreateRecipe", Input: map[string]any{"title": "Soup", "servings": json.Number("2")}, Seq: 1, Depth: 1},
		{Type: "invocation", Command: "Notify", Input: "Created Recipe 1", Seq: 2, Depth: 2},
		{Type: "completion", Command: "Notify", Outcome: "ok", Seq: 3},
		{Type: "completion", Command: "CreateRecipe", Outcome: "ok", Seq: 4},
		{Type: "invocation", Command: "GetRecipes", Seq: 5, Depth: 1},
		{Type: "completion", Command: "GetRecipes", Outcome: "ok", Seq: 6},
	}
}

func TestAssertTraceContains_Found(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:    AssertTraceContains,
		Command: "CreateRecipe",
		Input:   map[string]any{"title": "Soup"},
	})
	assert.NoError(t, err)
}

func TestAssertTraceContains_NumbersMatchAcrossTypes(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:    AssertTraceContains,
		Command: "CreateRecipe",
		Input:   map[string]any{"servings": 2},
	})
	assert.NoError(t, err)
}

func TestAssertTraceContains_ScalarInput(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:    AssertTraceContains,
		Command: "Notify",
		Input:   "Created Recipe 1",
	})
	assert.NoError(t, err)
}

func TestAssertTraceContains_NoInputRequired(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Command: "GetRecipes"})
	assert.NoError(t, err)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:    AssertTraceContains,
		Command: "DeleteRecipe",
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_contains", assertErr.Type)
	assert.Contains(t, assertErr.Expected, "DeleteRecipe")
	assert.Equal(t, "not found in trace", assertErr.Actual)
}

func TestAssertTraceContains_WrongInput(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:    AssertTraceContains,
		Command: "CreateRecipe",
		Input:   map[string]any{"title": "Stew"},
	})
	assert.Error(t, err)
}

func TestAssertTraceOrder(t *testing.T) {
	tests := []struct {
		name     string
		commands []string
		wantErr  string
	}{
		{name: "correct", commands: []string{"CreateRecipe", "Notify", "GetRecipes"}},
		{name: "intervening commands allowed", commands: []string{"CreateRecipe", "GetRecipes"}},
		{name: "wrong order", commands: []string{"GetRecipes", "CreateRecipe"}, wantErr: "should be before"},
		{name: "missing command", commands: []string{"CreateRecipe", "DeleteRecipe"}, wantErr: "missing command: DeleteRecipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(sampleTrace(), Assertion{Type: AssertTraceOrder, Commands: tt.commands})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.(*AssertionError).Actual, tt.wantErr)
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		command string
		count   int
		ok      bool
	}{
		{"CreateRecipe", 1, true},
		{"CreateRecipe", 2, false},
		{"Notify", 0, false},
		{"DeleteRecipe", 0, true},
	}

	for _, tt := range tests {
		err := assertTraceCount(sampleTrace(), Assertion{Type: AssertTraceCount, Command: tt.command, Count: tt.count})
		if tt.ok {
			assert.NoError(t, err, "%s x%d", tt.command, tt.count)
		} else {
			assert.Error(t, err, "%s x%d", tt.command, tt.count)
		}
	}
}

func TestAssertOutputContains(t *testing.T) {
	output := []string{"Created Recipe 1", `audit: recipe 1 "Soup" created`}

	assert.NoError(t, assertOutputContains(output, Assertion{Line: "Created Recipe 1"}))

	err := assertOutputContains(output, Assertion{Line: "Created Recipe"})
	require.Error(t, err)
	assert.Equal(t, "output_contains", err.(*AssertionError).Type)
}

func TestSubsetMatch(t *testing.T) {
	actual := map[string]any{
		"id":    json.Number("1"),
		"title": "Soup",
		"tags":  []any{"hot", "quick"},
		"meta":  map[string]any{"author": "ann", "rev": json.Number("3")},
		"note":  nil,
	}

	tests := []struct {
		name     string
		expected any
		want     bool
	}{
		{"empty object", map[string]any{}, true},
		{"one field", map[string]any{"title": "Soup"}, true},
		{"nested subset", map[string]any{"meta": map[string]any{"author": "ann"}}, true},
		{"array exact", map[string]any{"tags": []any{"hot", "quick"}}, true},
		{"array prefix", map[string]any{"tags": []any{"hot"}}, false},
		{"nested null", map[string]any{"note": nil}, true},
		{"missing key", map[string]any{"servings": json.Number("2")}, false},
		{"wrong value", map[string]any{"id": json.Number("2")}, false},
		{"object vs scalar", "Soup", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subsetMatch(actual, tt.expected))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.Output = []string{"Created Recipe 1"}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Command: "Notify"},
		{Type: AssertTraceCount, Command: "Notify", Count: 3},
		{Type: AssertOutputContains, Line: "Created Recipe 1"},
		{Type: "trace_magic"},
		{Type: AssertFinalState, Table: "recipes"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], `unknown assertion type "trace_magic"`)
	assert.Contains(t, errs[2], "final_state requires database context")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     "trace_count",
		Expected: "2 occurrences of Notify",
		Actual:   "1 occurrences",
		Trace:    sampleTrace()[:2],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 occurrences of Notify")
	assert.Contains(t, msg, "[2] Notify Created Recipe 1")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	sql, args, err = buildWhereClause(map[string]any{"title": "Soup", "id": 1})
	require.NoError(t, err)
	assert.Equal(t, "id = ? AND title = ?", sql)
	assert.Equal(t, []any{1, "Soup"}, args)

	// Values never end up in the SQL text
	sql, _, err = buildWhereClause(map[string]any{"title": "'; DROP TABLE recipes; --"})
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")

	_, _, err = buildWhereClause(map[string]any{"id; DROP": 1})
	assert.ErrorContains(t, err, "invalid column name")
}

func TestToSQLValue_Types(t *testing.T) {
	assert.Equal(t, "x", toSQLValue("x"))
	assert.Equal(t, 3, toSQLValue(3))
	assert.Equal(t, true, toSQLValue(true))
	assert.Equal(t, 1.5, toSQLValue(1.5))
	assert.Nil(t, toSQLValue(nil))
	assert.Equal(t, "[a]", toSQLValue([]any{"a"}))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("Soup", "Soup"))
	assert.True(t, stateValuesEqual("Soup", []byte("Soup")))
	assert.True(t, stateValuesEqual(1, int64(1)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual("1", int64(1)))
	assert.False(t, stateValuesEqual(nil, "x"))
	assert.False(t, stateValuesEqual(false, int64(1)))
}

// Integration tests for assertFinalState with real database

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.DB().Exec(`
		CREATE TABLE recipes (
			id INTEGER PRIMARY KEY,
			title TEXT,
			servings INTEGER,
			vegan INTEGER
		)
	`)
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO recipes (id, title, servings, vegan) VALUES (1, 'Soup', 4, 1), (2, 'Stew', 4, 0)`)
	require.NoError(t, err)
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := setupTestStore(t)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "row found",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"id": 1}, Expect: map[string]any{"title": "Soup", "vegan": true}},
		},
		{
			name:      "extra columns ignored",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"title": "Stew"}, Expect: map[string]any{"servings": 4}},
		},
		{
			name:      "empty expect",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"id": 2}},
		},
		{
			name:      "multiple where conditions",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"servings": 4, "vegan": 0}, Expect: map[string]any{"title": "Stew"}},
		},
		{
			name:      "row not found",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"id": 9}},
			wantErr:   "row not found",
		},
		{
			name:      "ambiguous",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"servings": 4}},
			wantErr:   "multiple rows matched",
		},
		{
			name:      "value mismatch",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"id": 1}, Expect: map[string]any{"servings": 2}},
			wantErr:   "servings",
		},
		{
			name:      "missing column",
			assertion: Assertion{Table: "recipes", Where: map[string]any{"id": 1}, Expect: map[string]any{"author": "ann"}},
			wantErr:   "not present",
		},
		{
			name:      "table not found",
			assertion: Assertion{Table: "menus"},
			wantErr:   "query error",
		},
		{
			name:      "invalid table name",
			assertion: Assertion{Table: "recipes; DROP TABLE recipes"},
			wantErr:   "invalid table name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertFinalState
			err := assertFinalState(context.Background(), st, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEvaluateAssertions_FinalStateWithContext_Pass(t *testing.T) {
	st := setupTestStore(t)

	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "recipes", Where: map[string]any{"id": 1}, Expect: map[string]any{"title": "Soup"}},
	}, &AssertionContext{Store: st, Ctx: context.Background()})
	assert.Empty(t, errs)
}
