package compiler

import "context"

// Noop stands in for a compiler when only source generation is wanted.
type Noop struct{}

// Name returns "none".
func (Noop) Name() string { return "none" }

// OutputPath returns an empty path; nothing is written.
func (Noop) OutputPath(string) string { return "" }

// Compile reports the source as is.
func (Noop) Compile(_ context.Context, source string) (*Result, error) {
	return &Result{Source: source}, nil
}
