package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

var (
	ErrNoSuchBlock    = errors.New("no such block")
	ErrNoSuchProperty = errors.New("no such property")
	ErrRoleMismatch   = errors.New("pad role mismatch")
	ErrDuplicateName  = errors.New("duplicate name")
	ErrRootBlock      = errors.New("operation not allowed on the root block")
	ErrNoSuchGroup    = errors.New("no such group")
)

// LookupError reports a name that matched nothing, with the closest
// known name when one is similar enough.
type LookupError struct {
	Kind       string // "block", "input", "output", "property"
	Name       string
	Owner      string // owning block for property lookups
	Suggestion string
	Err        error
}

func (e *LookupError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind)
	b.WriteString(" ")
	fmt.Fprintf(&b, "%q", e.Name)
	if e.Owner != "" {
		fmt.Fprintf(&b, " of block %q", e.Owner)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", e.Suggestion)
	}
	return b.String()
}

func (e *LookupError) Unwrap() error { return e.Err }

// CyclicGraphError lists the blocks of a dependency cycle in path order.
type CyclicGraphError struct {
	Blocks []string
}

func (e *CyclicGraphError) Error() string {
	return "cycle detected: " + strings.Join(e.Blocks, " -> ")
}

// suggestThreshold is the minimum similarity for a "did you mean" hint.
const suggestThreshold = 0.5

// Suggest returns the candidate most similar to name, or "" when none is
// close enough.
func Suggest(name string, candidates []string) string {
	metric := metrics.NewLevenshtein()
	best, bestScore := "", 0.0
	for _, c := range candidates {
		score := strutil.Similarity(name, c, metric)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}

func lookupError(kind, name, owner string, candidates []string, err error) *LookupError {
	return &LookupError{
		Kind:       kind,
		Name:       name,
		Owner:      owner,
		Suggestion: Suggest(name, candidates),
		Err:        err,
	}
}
