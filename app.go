package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/shrimp/pkg/codegen"
	"github.com/chazu/shrimp/pkg/compiler"
	"github.com/chazu/shrimp/pkg/config"
	"github.com/chazu/shrimp/pkg/engine"
	"github.com/chazu/shrimp/pkg/graph"
	"github.com/chazu/shrimp/pkg/library"
	"github.com/chazu/shrimp/pkg/pipeline"
	"github.com/chazu/shrimp/pkg/sceneio"
)

// App ties the configuration, the block library and the script engine
// together. The CLI commands are thin wrappers around its methods.
type App struct {
	cfg    *config.Config
	lib    *library.Library
	engine *engine.Engine
}

// ShaderData is one generated shader.
type ShaderData struct {
	Stage  string   `json:"stage"`
	Name   string   `json:"name"`
	Source string   `json:"source"`
	Blocks []string `json:"blocks"`
}

// EvalErrorData is a script error or a validation finding.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Block   string `json:"block,omitempty"`
	Message string `json:"message"`
}

// EvalResult is the outcome of evaluating a scene script.
type EvalResult struct {
	Shaders  []ShaderData    `json:"shaders"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// NewApp loads the default block library plus the configured block
// directories.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	lib, err := library.Default()
	if err != nil {
		return nil, err
	}
	for _, dir := range cfg.BlockPaths {
		if err := lib.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	eng, err := engine.NewEngine(lib)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, lib: lib, engine: eng}, nil
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Library returns the block library.
func (a *App) Library() *library.Library {
	return a.lib
}

// isScript reports whether path holds a scene script rather than a saved
// XML scene.
func isScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lisp", ".shrimp", ".zy":
		return true
	}
	return false
}

// LoadScene reads a saved scene or evaluates a scene script. Script errors
// are joined into the returned error.
func (a *App) LoadScene(path string) (*graph.Scene, error) {
	if !isScript(path) {
		return sceneio.LoadFile(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, evalErrs, err := a.engine.Evaluate(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(evalErrs) > 0 {
		msgs := make([]string, len(evalErrs))
		for i, e := range evalErrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("%s: %s", path, strings.Join(msgs, "; "))
	}
	return s, nil
}

// Evaluate runs a scene script and assembles every connected stage.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Shaders:  []ShaderData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	res, err := a.engine.EvaluateResult(source)
	if err != nil {
		slog.Error("evaluate failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	for _, e := range res.Errors {
		result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
	}
	if len(result.Errors) > 0 {
		return result
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Line: w.Line, Col: w.Col, Block: w.Block, Message: w.Message})
	}

	shaders, err := pipeline.Generate(res.Scene, a.cfg.AssemblerOptions())
	if errors.Is(err, codegen.ErrEmptyStage) {
		return result
	}
	if err != nil {
		slog.Error("generate failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: "code generation failed: " + err.Error()})
		return result
	}
	for _, sh := range shaders {
		result.Shaders = append(result.Shaders, ShaderData{
			Stage:  sh.Stage.String(),
			Name:   sh.Name,
			Source: sh.Source,
			Blocks: sh.Blocks,
		})
	}
	return result
}

// Generate assembles the shaders of the scene at path.
func (a *App) Generate(path string) ([]*codegen.Shader, error) {
	s, err := a.LoadScene(path)
	if err != nil {
		return nil, err
	}
	return pipeline.Generate(s, a.cfg.AssemblerOptions())
}

// Build writes the shaders of the scene at path into the configured
// shader directory and, when compile is set, compiles them with the
// selected renderer.
func (a *App) Build(ctx context.Context, path string, compile bool) ([]*pipeline.Artifact, error) {
	s, err := a.LoadScene(path)
	if err != nil {
		return nil, err
	}
	opts := pipeline.Options{
		Dir:       a.cfg.ShaderDir,
		Assembler: a.cfg.AssemblerOptions(),
	}
	if compile {
		r, err := a.cfg.Current()
		if err != nil {
			return nil, err
		}
		opts.Compiler = compiler.New(r, a.cfg.IncludePaths)
	}
	return pipeline.Run(ctx, s, opts)
}

// Validate checks the scene at path.
func (a *App) Validate(path string) (graph.ValidationResult, error) {
	s, err := a.LoadScene(path)
	if err != nil {
		return graph.ValidationResult{}, err
	}
	return graph.ValidateAll(s), nil
}

// Convert loads a scene or script and saves it as an XML scene.
func (a *App) Convert(in, out string) error {
	s, err := a.LoadScene(in)
	if err != nil {
		return err
	}
	return sceneio.SaveFile(out, s)
}
