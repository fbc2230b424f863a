package testutil

import "github.com/roach88/hookrun/internal/engine"

// DefaultFlowToken is used when a scenario does not name its own token.
const DefaultFlowToken = "test-flow-default"

var _ engine.FlowTokenGenerator = (*FixedFlowGenerator)(nil)

// FixedFlowGenerator hands out one token for every top-level run, so all
// runs of a scenario share a flow. engine.FixedGenerator instead yields each
// of its tokens once.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator returns a generator for token, or for
// DefaultFlowToken when token is empty.
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = DefaultFlowToken
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
