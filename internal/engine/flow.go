package engine

import (
	"sync"

	"github.com/google/uuid"
)

// FlowTokenGenerator generates the correlation token of a top-level run.
// Nested runs inherit their parent's token instead of generating one.
type FlowTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator is the default generator. UUIDv7 tokens start with a
// millisecond timestamp, so flows listed by token sort by start time.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator yields each of its tokens once, in order, and panics when
// a test dispatches more top-level runs than it declared tokens for.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

// NewFixedGenerator returns a generator over tokens.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next >= len(g.tokens) {
		panic("engine: FixedGenerator has no tokens left")
	}
	token := g.tokens[g.next]
	g.next++
	return token
}
