package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/chazu/shrimp/pkg/config"
)

// ErrEmptyCommand is returned for a compile template with no words.
var ErrEmptyCommand = errors.New("empty compile command")

// Vars are the values substituted into a compile template.
type Vars struct {
	Renderer string   // %r, the renderer code
	Source   string   // %s
	Output   string   // %o
	Includes []string // %i, one word per path
}

// Expand splits template into words and substitutes vars. A word holding
// %i is repeated once per include path and dropped when there is none.
// %% stands for a literal percent sign; any other % sequence is an error.
func Expand(template string, vars Vars) ([]string, error) {
	words, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse compile command %q: %w", template, err)
	}
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}

	var args []string
	for _, w := range words {
		if !strings.Contains(w, "%i") {
			s, err := expandWord(w, vars, "")
			if err != nil {
				return nil, fmt.Errorf("compile command %q: %w", template, err)
			}
			args = append(args, s)
			continue
		}
		for _, inc := range vars.Includes {
			s, err := expandWord(w, vars, inc)
			if err != nil {
				return nil, fmt.Errorf("compile command %q: %w", template, err)
			}
			args = append(args, s)
		}
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}

func expandWord(w string, vars Vars, include string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(w); i++ {
		if w[i] != '%' {
			b.WriteByte(w[i])
			continue
		}
		if i+1 >= len(w) {
			return "", fmt.Errorf("dangling %% at end of %q", w)
		}
		i++
		switch w[i] {
		case 'r':
			b.WriteString(vars.Renderer)
		case 's':
			b.WriteString(vars.Source)
		case 'o':
			b.WriteString(vars.Output)
		case 'i':
			b.WriteString(include)
		case '%':
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("unknown substitution %%%c in %q", w[i], w)
		}
	}
	return b.String(), nil
}

// Command compiles by running the renderer's compile template as an
// external process.
type Command struct {
	Renderer config.Renderer
	Includes []string
	// Dir is the working directory of the process. Empty means the
	// directory of the source file.
	Dir string
}

// New returns a command compiler for r.
func New(r config.Renderer, includes []string) *Command {
	return &Command{Renderer: r, Includes: includes}
}

// Name returns the renderer name.
func (c *Command) Name() string {
	return c.Renderer.Name
}

// OutputPath replaces the .sl extension of source with the renderer's.
func (c *Command) OutputPath(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + c.Renderer.Extension
}

// Args returns the expanded command line for source.
func (c *Command) Args(source string) ([]string, error) {
	return Expand(c.Renderer.Compile, Vars{
		Renderer: strconv.Itoa(c.Renderer.Code),
		Source:   source,
		Output:   c.OutputPath(source),
		Includes: c.Includes,
	})
}

// Compile runs the compiler. A non-zero exit yields an *Error carrying the
// captured output.
func (c *Command) Compile(ctx context.Context, source string) (*Result, error) {
	args, err := c.Args(source)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(source)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	slog.Debug("compiling shader", "renderer", c.Renderer.Name, "args", args)
	if err := cmd.Run(); err != nil {
		return nil, &Error{Renderer: c.Renderer.Name, Args: args, Output: out.Bytes(), Err: err}
	}
	return &Result{Source: source, Output: c.OutputPath(source), Log: out.Bytes()}, nil
}
