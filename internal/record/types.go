package record

import "encoding/json"

// Outcome is the terminal state of a run.
type Outcome string

const (
	// OutcomeOK means every phase succeeded and the handler result was returned.
	OutcomeOK Outcome = "ok"
	// OutcomeError means some phase failed; Completion.Phase names which.
	OutcomeError Outcome = "error"
)

// Phase names used in completions. They match registry kind names where a
// phase corresponds to a binding kind.
const (
	PhaseResolve    = "resolve"
	PhaseMiddleware = "middleware"
	PhaseBefore     = "before"
	PhaseHandle     = "handle"
	PhaseAfter      = "after"
)

// Invocation records the start of one run.
type Invocation struct {
	ID        string          `json:"id"`
	FlowToken string          `json:"flow_token"`
	ParentID  string          `json:"parent_id,omitempty"` // invocation that triggered this one, if nested
	Command   string          `json:"command"`
	Input     json.RawMessage `json:"input"`
	Seq       int64           `json:"seq"`
	Depth     int             `json:"depth"`
}

// Completion records how a run ended.
type Completion struct {
	ID           string          `json:"id"`
	InvocationID string          `json:"invocation_id"`
	Outcome      Outcome         `json:"outcome"`
	Phase        string          `json:"phase,omitempty"` // failing phase; empty on success
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Seq          int64           `json:"seq"`
}

// OK reports whether the completion is a success.
func (c Completion) OK() bool {
	return c.Outcome == OutcomeOK
}
