package harness

import "github.com/roach88/hookrun/internal/store"

// TraceEvent is one recorded invocation or completion, with captured values
// decoded to generic JSON (map[string]any, []any, json.Number, ...).
type TraceEvent struct {
	Type    string `json:"type"` // "invocation" or "completion"
	Command string `json:"command"`
	Seq     int64  `json:"seq"`

	// Invocation fields.
	Input any `json:"input,omitempty"`
	Depth int `json:"depth,omitempty"`

	// Completion fields.
	Outcome string `json:"outcome,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result collects what one scenario run produced. Pass stays true until
// the first mismatch is added.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Output []string     `json:"output"`
	Errors []string     `json:"errors,omitempty"`
}

func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Output: []string{}, Errors: []string{}}
}

// AddError records a mismatch and fails the result.
func (r *Result) AddError(err string) {
	r.Pass = false
	r.Errors = append(r.Errors, err)
}

// AddEvent appends a timeline event with its captured value decoded.
// Events of other kinds are ignored.
func (r *Result) AddEvent(e store.Event) error {
	ev := TraceEvent{Type: string(e.Kind), Command: e.Command, Seq: e.Seq}
	var err error
	switch e.Kind {
	case store.EventInvocation:
		ev.Depth = e.Invocation.Depth
		ev.Input, err = decodeCaptured(e.Invocation.Input)
	case store.EventCompletion:
		c := e.Completion
		ev.Outcome, ev.Phase, ev.Error = string(c.Outcome), c.Phase, c.Error
		ev.Result, err = decodeCaptured(c.Result)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	r.Trace = append(r.Trace, ev)
	return nil
}
