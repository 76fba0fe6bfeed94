// Package pipeline walks a scene and produces shader artifacts: one
// generated source file per connected stage, compiled by a renderer
// compiler. The walk is read-only and never mutates the scene.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chazu/shrimp/pkg/codegen"
	"github.com/chazu/shrimp/pkg/compiler"
	"github.com/chazu/shrimp/pkg/graph"
)

// Artifact is the outcome of one stage.
type Artifact struct {
	Stage      graph.Stage
	Name       string
	SourcePath string
	// OutputPath is the compiled file, empty when nothing was compiled.
	OutputPath string
	Log        []byte
	Blocks     []string
}

// Options configures Run.
type Options struct {
	// Dir receives the generated .sl files. It is created when missing.
	Dir       string
	Assembler codegen.Options
	// Compiler compiles each written file. Nil means generate only.
	Compiler compiler.Compiler
	// KeepGoing compiles the remaining stages after a compiler failure.
	KeepGoing bool
}

// StageError ties a failure to the stage that caused it.
type StageError struct {
	Stage graph.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s shader: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Generate assembles every connected stage of s without touching the
// file system.
func Generate(s *graph.Scene, opts codegen.Options) ([]*codegen.Shader, error) {
	if s == nil {
		return nil, nil
	}
	return codegen.NewAssembler(s, opts).BuildAll()
}

// Run generates, writes and compiles every connected stage of s. Artifacts
// of the stages that succeeded are returned together with the first error.
func Run(ctx context.Context, s *graph.Scene, opts Options) ([]*Artifact, error) {
	shaders, err := Generate(s, opts.Assembler)
	if err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	c := opts.Compiler
	if c == nil {
		c = compiler.Noop{}
	}

	var artifacts []*Artifact
	var firstErr error
	for _, sh := range shaders {
		a, err := runStage(ctx, sh, opts.Dir, c)
		if err != nil {
			err = &StageError{Stage: sh.Stage, Err: err}
			if firstErr == nil {
				firstErr = err
			}
			slog.Error("stage failed", "stage", sh.Stage, "shader", sh.Name, "err", err)
			if !opts.KeepGoing {
				return artifacts, firstErr
			}
			continue
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, firstErr
}

func runStage(ctx context.Context, sh *codegen.Shader, dir string, c compiler.Compiler) (*Artifact, error) {
	path := filepath.Join(dir, sh.Name+".sl")
	if err := writeFile(path, []byte(sh.Source)); err != nil {
		return nil, err
	}
	slog.Info("shader written", "stage", sh.Stage, "path", path)

	res, err := c.Compile(ctx, path)
	if err != nil {
		return nil, err
	}
	if res.Output != "" {
		slog.Info("shader compiled", "renderer", c.Name(), "output", res.Output)
	}
	return &Artifact{
		Stage:      sh.Stage,
		Name:       sh.Name,
		SourcePath: path,
		OutputPath: res.Output,
		Log:        res.Log,
		Blocks:     sh.Blocks,
	}, nil
}

// writeFile replaces path through a temporary file in the same directory.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
