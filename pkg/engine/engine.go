// Package engine provides the Lisp scene-scripting engine for shrimp.
// It wraps zygomys in a sandboxed environment and builds a shader scene
// from user source code.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/shrimp/pkg/graph"
	"github.com/chazu/shrimp/pkg/library"
)

// DefaultSceneName names the scene of a script that never calls (scene ...).
const DefaultSceneName = "untitled"

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal finding about the evaluated scene.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	Block   string
}

// EvalResult bundles the full output of an evaluation.
type EvalResult struct {
	Scene    *graph.Scene
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter for scene scripts.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	// Timeout bounds a single evaluation. Zero means EvalTimeout.
	Timeout time.Duration

	lib  *library.Library
	runs runCounter
}

// NewEngine creates an engine whose (block ...) builtin instantiates
// templates from lib. A nil lib means the embedded default library.
func NewEngine(lib *library.Library) (*Engine, error) {
	if lib == nil {
		var err error
		if lib, err = library.Default(); err != nil {
			return nil, err
		}
	}
	return &Engine{lib: lib}, nil
}

// Library returns the block library used by (block ...).
func (e *Engine) Library() *library.Library {
	return e.lib
}

// Evaluate takes Lisp source code and produces a new scene.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns scene + nil errors + nil error
//   - On parse/eval failure: returns nil scene + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*graph.Scene, []EvalError, error) {
	run := e.runs.next()
	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		s, evalErrs, err := e.evaluate(source)
		ch <- evalResult{scene: s, errors: evalErrs, err: err}
	}()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return awaitScene(ch, run, timeout, &e.runs)
}

// EvaluateResult runs Evaluate and validates the resulting scene.
// Validation findings become warnings; fatal errors are returned as is.
func (e *Engine) EvaluateResult(source string) (EvalResult, error) {
	s, evalErrs, err := e.Evaluate(source)
	if err != nil {
		return EvalResult{}, err
	}
	res := EvalResult{Scene: s, Errors: evalErrs}
	if s == nil {
		return res, nil
	}
	for _, f := range graph.Validate(s) {
		res.Warnings = append(res.Warnings, EvalWarning{
			Message: f.Error(),
			Block:   f.Block,
		})
	}
	return res, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*graph.Scene, []EvalError, error) {
	s := graph.New(DefaultSceneName)

	// Empty source is a valid program that produces an empty scene.
	if strings.TrimSpace(source) == "" {
		return s, nil, nil
	}

	// Sandbox mode prevents scripts from reaching the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, s, e.lib)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return s, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	if m := linePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
	}
	if m := linePatternShort.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
