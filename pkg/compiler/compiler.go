// Package compiler defines the shader compiler interface. Implementations
// turn a written .sl file into the renderer's compiled form. The
// abstraction allows swapping renderers without changing the rest of the
// system.
package compiler

import (
	"context"
	"fmt"
	"strings"
)

// Result describes one compiled shader.
type Result struct {
	Source string // .sl file that was compiled
	Output string // compiled file, empty when the compiler wrote nothing
	Log    []byte // combined compiler output
}

// Compiler compiles a shading-language source file.
type Compiler interface {
	// Name identifies the renderer this compiler serves.
	Name() string
	// OutputPath is where Compile writes the compiled form of source.
	OutputPath(source string) string
	// Compile compiles source. The context bounds the external process.
	Compile(ctx context.Context, source string) (*Result, error)
}

// Error reports a compiler process that failed.
type Error struct {
	Renderer string
	Args     []string
	Output   []byte
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", e.Renderer, strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(string(e.Output)); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
