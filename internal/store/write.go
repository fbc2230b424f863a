package store

import (
	"context"
	"fmt"

	"github.com/roach88/hookrun/internal/record"
)

// RecordInvocation inserts an invocation record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
// Other constraint violations (e.g., NOT NULL) will still return errors.
func (s *Store) RecordInvocation(ctx context.Context, inv record.Invocation) error {
	if inv.ID == "" {
		return fmt.Errorf("record invocation: empty id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations
		(id, flow_token, parent_id, command, input, seq, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.FlowToken,
		inv.ParentID,
		inv.Command,
		rawOrNull(inv.Input),
		inv.Seq,
		inv.Depth,
	)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}

	return nil
}

// RecordCompletion inserts a completion record into the store.
// Each invocation can have exactly ONE completion (enforced by UNIQUE
// constraint on invocation_id); a second completion is silently ignored.
//
// Note: The invocation referenced by InvocationID must exist (foreign key constraint).
func (s *Store) RecordCompletion(ctx context.Context, comp record.Completion) error {
	if comp.ID == "" {
		return fmt.Errorf("record completion: empty id")
	}

	var result any
	if len(comp.Result) > 0 {
		result = string(comp.Result)
	}

	// ON CONFLICT DO NOTHING handles both:
	// 1. Duplicate completion ID (same completion written twice)
	// 2. Duplicate invocation_id (second completion for same invocation)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completions
		(id, invocation_id, outcome, phase, result, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		comp.ID,
		comp.InvocationID,
		string(comp.Outcome),
		comp.Phase,
		result,
		comp.Error,
		comp.Seq,
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}

	return nil
}

func rawOrNull(raw []byte) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
