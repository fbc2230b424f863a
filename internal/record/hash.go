package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed IDs. The version suffix allows the
// algorithm to change without colliding with old IDs.
const (
	DomainInvocation = "hookrun/invocation/v1"
	DomainCompletion = "hookrun/completion/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID of an invocation.
func InvocationID(flowToken, parentID, command string, input json.RawMessage, seq int64) (string, error) {
	inputVal, err := Decode(input)
	if err != nil {
		return "", fmt.Errorf("InvocationID: %w", err)
	}

	canonical, err := MarshalCanonical(map[string]any{
		"flow_token": flowToken,
		"parent_id":  parentID,
		"command":    command,
		"input":      inputVal,
		"seq":        seq,
	})
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainInvocation, canonical), nil
}

// CompletionID computes the content-addressed ID of a completion.
func CompletionID(invocationID string, outcome Outcome, phase string, result json.RawMessage, errMsg string, seq int64) (string, error) {
	resultVal, err := Decode(result)
	if err != nil {
		return "", fmt.Errorf("CompletionID: %w", err)
	}

	canonical, err := MarshalCanonical(map[string]any{
		"invocation_id": invocationID,
		"outcome":       string(outcome),
		"phase":         phase,
		"result":        resultVal,
		"error":         errMsg,
		"seq":           seq,
	})
	if err != nil {
		return "", fmt.Errorf("CompletionID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainCompletion, canonical), nil
}
