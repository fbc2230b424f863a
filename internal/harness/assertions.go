package harness

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/hookrun/internal/store"
)

// validIdentifier restricts final_state table and column names, which are
// interpolated into SQL, to plain identifiers.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes a failed assertion together with the
// invocations of the trace it was checked against.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assertion failed: %s\n  Expected: %s\n  Actual: %s\n", e.Type, e.Expected, e.Actual)
	if len(e.Trace) == 0 {
		return b.String()
	}
	b.WriteString("\nFull trace:\n")
	for i, event := range e.Trace {
		if event.Type == "invocation" {
			fmt.Fprintf(&b, "  [%d] %s %v\n", i+1, event.Command, event.Input)
		}
	}
	return b.String()
}

func traceFailure(kind string, trace []TraceEvent, expected, actual string) *AssertionError {
	return &AssertionError{Type: kind, Expected: expected, Actual: actual, Trace: trace}
}

// invocations calls fn with the position and command of every invocation.
func invocations(trace []TraceEvent, fn func(pos int, e TraceEvent)) {
	for i, e := range trace {
		if e.Type == "invocation" {
			fn(i+1, e)
		}
	}
}

// assertTraceContains passes when some invocation of the command has an
// input containing the expected input. A missing input matches any.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	var want any
	if a.Input != nil {
		var err error
		if want, err = normalize(a.Input); err != nil {
			return err
		}
	}

	found := false
	invocations(trace, func(_ int, e TraceEvent) {
		if !found && e.Command == a.Command && (want == nil || subsetMatch(e.Input, want)) {
			found = true
		}
	})
	if found {
		return nil
	}
	return traceFailure(AssertTraceContains, trace,
		fmt.Sprintf("command %s with input %v", a.Command, a.Input), "not found in trace")
}

// assertTraceOrder passes when the first invocations of the commands appear
// in the listed order. Other invocations may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	first := make(map[string]int)
	invocations(trace, func(pos int, e TraceEvent) {
		if _, seen := first[e.Command]; !seen {
			first[e.Command] = pos
		}
	})

	for _, cmd := range a.Commands {
		if _, ok := first[cmd]; !ok {
			return traceFailure(AssertTraceOrder, trace,
				fmt.Sprintf("all commands present: %v", a.Commands), "missing command: "+cmd)
		}
	}
	for i := 1; i < len(a.Commands); i++ {
		prev, cur := a.Commands[i-1], a.Commands[i]
		if first[prev] >= first[cur] {
			return traceFailure(AssertTraceOrder, trace,
				fmt.Sprintf("commands in order: %v", a.Commands),
				fmt.Sprintf("%s (pos %d) should be before %s (pos %d)", prev, first[prev], cur, first[cur]))
		}
	}
	return nil
}

// assertTraceCount passes when the command was invoked exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	invocations(trace, func(_ int, e TraceEvent) {
		if e.Command == a.Command {
			count++
		}
	})
	if count == a.Count {
		return nil
	}
	return traceFailure(AssertTraceCount, trace,
		fmt.Sprintf("%d occurrences of %s", a.Count, a.Command), fmt.Sprintf("%d occurrences", count))
}

// assertOutputContains passes when the app wrote the line.
func assertOutputContains(output []string, a Assertion) error {
	if slices.Contains(output, a.Line) {
		return nil
	}
	return traceFailure(AssertOutputContains, nil, fmt.Sprintf("output line %q", a.Line), fmt.Sprintf("output: %q", output))
}

// assertFinalState passes when exactly one row of the table matches Where
// and that row has every column in Expect.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if a.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier)
	}
	where, args, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := "SELECT * FROM " + a.Table
	if where != "" {
		query += " WHERE " + where
	}
	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return traceFailure(AssertFinalState, nil, "query table "+a.Table, fmt.Sprintf("query error: %v", err))
	}
	defer rows.Close()

	row, n, err := scanOnlyRow(rows)
	if err != nil {
		return err
	}
	switch desc := fmt.Sprintf("in %s where %s", a.Table, formatWhereClause(a.Where)); {
	case n == 0:
		return traceFailure(AssertFinalState, nil, "row "+desc, "row not found")
	case n > 1:
		return traceFailure(AssertFinalState, nil, "exactly one row "+desc, "multiple rows matched (assertion is ambiguous)")
	}

	for _, key := range slices.Sorted(maps.Keys(a.Expect)) {
		want := a.Expect[key]
		got, ok := row[key]
		if !ok {
			return traceFailure(AssertFinalState, nil,
				fmt.Sprintf("field %q to exist", key),
				fmt.Sprintf("field %q not present in result columns: %v", key, slices.Sorted(maps.Keys(row))))
		}
		if !stateValuesEqual(want, got) {
			return traceFailure(AssertFinalState, nil,
				fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				fmt.Sprintf("field %q = %v (type %T)", key, got, got))
		}
	}
	return nil
}

// scanOnlyRow reads the first row as a column map and reports how many
// rows there were, stopping at two.
func scanOnlyRow(rows *sql.Rows) (map[string]any, int, error) {
	if !rows.Next() {
		return nil, 0, rows.Err()
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, 0, fmt.Errorf("get columns: %w", err)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, 0, fmt.Errorf("scan row: %w", err)
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	if rows.Next() {
		return row, 2, nil
	}
	return row, 1, rows.Err()
}

// buildWhereClause returns a parameterized conjunction over where, with
// columns in sorted order.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := slices.Sorted(maps.Keys(where))
	clauses := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier)
		}
		clauses[i] = key + " = ?"
		args[i] = toSQLValue(where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue passes scalars through and formats anything else with %v.
func toSQLValue(v any) any {
	switch v.(type) {
	case string, int, int64, bool, float64, nil:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML value with a value scanned from SQLite,
// where TEXT may arrive as []byte and booleans as integers.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	switch exp := expected.(type) {
	case nil:
		return actual == nil
	case int:
		return stateValuesEqual(int64(exp), actual)
	case int64:
		switch act := actual.(type) {
		case int64:
			return exp == act
		case int:
			return exp == int64(act)
		}
		return false
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	case string, float64:
		return expected == actual
	}
	return reflect.DeepEqual(expected, actual)
}

// subsetMatch reports whether actual contains expected. Objects match when
// every expected key matches; extra keys in actual are ignored. Arrays must
// have the same length and match element-wise. Both sides are in the decoded
// form returned by normalize.
func subsetMatch(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for key, want := range exp {
			got, exists := act[key]
			if !exists || !subsetMatch(got, want) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !subsetMatch(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}

// AssertionContext carries the database final_state assertions query.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

var traceChecks = map[string]func([]TraceEvent, Assertion) error{
	AssertTraceContains: assertTraceContains,
	AssertTraceOrder:    assertTraceOrder,
	AssertTraceCount:    assertTraceCount,
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure. actx may be nil when no assertion is final_state.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			if _, ok := err.(*AssertionError); !ok {
				err = fmt.Errorf("assertion[%d]: %w", i, err)
			}
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	if check, ok := traceChecks[a.Type]; ok {
		return check(result.Trace, a)
	}
	switch a.Type {
	case AssertOutputContains:
		return assertOutputContains(result.Output, a)
	case AssertFinalState:
		if actx == nil || actx.Store == nil {
			return fmt.Errorf("final_state requires database context")
		}
		return assertFinalState(actx.Ctx, actx.Store, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}
