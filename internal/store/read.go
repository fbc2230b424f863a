package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/hookrun/internal/record"
)

// EventKind distinguishes the two record kinds in a timeline.
type EventKind string

const (
	EventInvocation EventKind = "invocation"
	EventCompletion EventKind = "completion"
)

// Event is one entry of a flow timeline. Exactly one of Invocation and
// Completion is set, matching Kind.
type Event struct {
	Seq        int64              `json:"seq"`
	Kind       EventKind          `json:"kind"`
	Invocation *record.Invocation `json:"invocation,omitempty"`
	Completion *record.Completion `json:"completion,omitempty"`

	// Command is the invoked command, filled for both kinds.
	Command string `json:"command"`
}

// FlowSummary describes one recorded flow.
type FlowSummary struct {
	FlowToken   string `json:"flow_token"`
	Command     string `json:"command"`
	Invocations int    `json:"invocations"`
	Errors      int    `json:"errors"`
	FirstSeq    int64  `json:"first_seq"`
}

// ReadFlow returns all invocations and completions for a flow token.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns empty slices (not nil) if no records exist for the flow token.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]record.Invocation, []record.Completion, error) {
	invocations, err := s.queryInvocations(ctx, `
		SELECT id, flow_token, parent_id, command, input, seq, depth
		FROM invocations
		WHERE flow_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, nil, err
	}

	completions, err := s.readFlowCompletions(ctx, flowToken)
	if err != nil {
		return nil, nil, err
	}

	return invocations, completions, nil
}

// ReadTimeline returns the flow's invocations and completions merged into one
// seq-ordered sequence.
func (s *Store) ReadTimeline(ctx context.Context, flowToken string) ([]Event, error) {
	invocations, completions, err := s.ReadFlow(ctx, flowToken)
	if err != nil {
		return nil, err
	}

	commands := make(map[string]string, len(invocations))
	for _, inv := range invocations {
		commands[inv.ID] = inv.Command
	}

	events := make([]Event, 0, len(invocations)+len(completions))
	i, j := 0, 0
	for i < len(invocations) || j < len(completions) {
		if j >= len(completions) || (i < len(invocations) && invocations[i].Seq <= completions[j].Seq) {
			inv := invocations[i]
			events = append(events, Event{Seq: inv.Seq, Kind: EventInvocation, Invocation: &inv, Command: inv.Command})
			i++
			continue
		}
		comp := completions[j]
		events = append(events, Event{Seq: comp.Seq, Kind: EventCompletion, Completion: &comp, Command: commands[comp.InvocationID]})
		j++
	}

	return events, nil
}

// ReadInvocation retrieves a single invocation by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadInvocation(ctx context.Context, id string) (record.Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, flow_token, parent_id, command, input, seq, depth
		FROM invocations
		WHERE id = ?
	`, id)

	return scanInvocation(row)
}

// ReadChildren returns the invocations dispatched from within the run with
// the given invocation ID.
func (s *Store) ReadChildren(ctx context.Context, parentID string) ([]record.Invocation, error) {
	return s.queryInvocations(ctx, `
		SELECT id, flow_token, parent_id, command, input, seq, depth
		FROM invocations
		WHERE parent_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, parentID)
}

// ReadCompletionFor returns the completion for an invocation.
// Returns sql.ErrNoRows if the run has not completed.
func (s *Store) ReadCompletionFor(ctx context.Context, invocationID string) (record.Completion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invocation_id, outcome, phase, result, error, seq
		FROM completions
		WHERE invocation_id = ?
	`, invocationID)

	return scanCompletion(row)
}

// ListFlows summarizes every recorded flow, oldest first. The summary's
// Command is the flow's top-level command.
func (s *Store) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			i.flow_token,
			(SELECT r.command FROM invocations r
			 WHERE r.flow_token = i.flow_token AND r.depth = 1
			 ORDER BY r.seq ASC, r.id COLLATE BINARY ASC LIMIT 1),
			COUNT(*),
			COUNT(CASE WHEN c.outcome = 'error' THEN 1 END),
			MIN(i.seq)
		FROM invocations i
		LEFT JOIN completions c ON c.invocation_id = i.id
		GROUP BY i.flow_token
		ORDER BY MIN(i.seq) ASC, i.flow_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	flows := []FlowSummary{}
	for rows.Next() {
		var f FlowSummary
		var command sql.NullString
		if err := rows.Scan(&f.FlowToken, &command, &f.Invocations, &f.Errors, &f.FirstSeq); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		f.Command = command.String
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}

	return flows, nil
}

// MaxSeq returns the highest seq recorded, or 0 for an empty store.
// Callers continue numbering with engine.NewClockAt(MaxSeq).
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM invocations
			UNION ALL
			SELECT seq FROM completions
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query max seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) queryInvocations(ctx context.Context, query string, args ...any) ([]record.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []record.Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}

	return invocations, nil
}

// readFlowCompletions returns all completions for a flow token with deterministic ordering.
func (s *Store) readFlowCompletions(ctx context.Context, flowToken string) ([]record.Completion, error) {
	// Join with invocations to filter by flow_token
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.invocation_id, c.outcome, c.phase, c.result, c.error, c.seq
		FROM completions c
		JOIN invocations i ON c.invocation_id = i.id
		WHERE i.flow_token = ?
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	completions := []record.Completion{}
	for rows.Next() {
		comp, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		completions = append(completions, comp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}

	return completions, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (record.Invocation, error) {
	var inv record.Invocation
	var input string
	if err := row.Scan(&inv.ID, &inv.FlowToken, &inv.ParentID, &inv.Command, &input, &inv.Seq, &inv.Depth); err != nil {
		if err == sql.ErrNoRows {
			return record.Invocation{}, err
		}
		return record.Invocation{}, fmt.Errorf("scan invocation: %w", err)
	}
	inv.Input = json.RawMessage(input)
	return inv, nil
}

func scanCompletion(row scanner) (record.Completion, error) {
	var comp record.Completion
	var outcome string
	var result sql.NullString
	if err := row.Scan(&comp.ID, &comp.InvocationID, &outcome, &comp.Phase, &result, &comp.Error, &comp.Seq); err != nil {
		if err == sql.ErrNoRows {
			return record.Completion{}, err
		}
		return record.Completion{}, fmt.Errorf("scan completion: %w", err)
	}
	comp.Outcome = record.Outcome(outcome)
	if result.Valid {
		comp.Result = json.RawMessage(result.String)
	}
	return comp, nil
}
