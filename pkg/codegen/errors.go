package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/shrimp/pkg/graph"
)

// ErrEmptyStage is returned when no sink pad of a stage is connected.
var ErrEmptyStage = errors.New("no sink of the stage is connected")

// BlockTokens lists the placeholders of one block that named nothing.
type BlockTokens struct {
	Block  string
	Tokens []string
}

// UnresolvedTokensError fails an assembly whose block code still holds
// placeholders after substitution.
type UnresolvedTokensError struct {
	Stage  graph.Stage
	Blocks []BlockTokens
}

func (e *UnresolvedTokensError) Error() string {
	parts := make([]string, 0, len(e.Blocks))
	for _, b := range e.Blocks {
		parts = append(parts, fmt.Sprintf("%s: %s", b.Block, strings.Join(b.Tokens, ", ")))
	}
	return fmt.Sprintf("%s shader: unresolved placeholders in %s", e.Stage, strings.Join(parts, "; "))
}

// Tokens returns every unresolved token across blocks.
func (e *UnresolvedTokensError) Tokens() []string {
	var out []string
	for _, b := range e.Blocks {
		out = append(out, b.Tokens...)
	}
	return out
}
