package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/shrimp/pkg/graph"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(nil)
	require.NoError(t, err)
	return eng
}

func TestEvaluateEmptyString(t *testing.T) {
	eng := newTestEngine(t)

	for _, src := range []string{"", "   \n\t  \n  "} {
		s, evalErrs, err := eng.Evaluate(src)
		require.NoError(t, err)
		require.Empty(t, evalErrs)
		require.NotNil(t, s)
		assert.Equal(t, DefaultSceneName, s.Name)
		assert.Equal(t, 1, s.BlockCount(), "only the root block")
	}
}

func TestEvaluatePlainLisp(t *testing.T) {
	eng := newTestEngine(t)

	source := `
(def x 10)
(def y 20)
(+ x y)
`
	s, evalErrs, err := eng.Evaluate(source)
	require.NoError(t, err)
	require.Empty(t, evalErrs)
	require.NotNil(t, s)
	assert.Equal(t, 1, s.BlockCount())
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := newTestEngine(t)

	// Unmatched paren is a parse error.
	s, evalErrs, err := eng.Evaluate("(+ 1 2")
	require.NoError(t, err, "syntax errors are not fatal")
	assert.Nil(t, s)
	require.NotEmpty(t, evalErrs)
	assert.NotEmpty(t, evalErrs[0].Message)
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	eng := newTestEngine(t)

	s, evalErrs, err := eng.Evaluate("(+ 1 undefined-symbol)")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NotEmpty(t, evalErrs)
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	assert.Contains(t, e.Error(), "line 5")
	assert.Contains(t, e.Error(), "something went wrong")

	e2 := EvalError{Message: "no location"}
	assert.NotContains(t, e2.Error(), "line")
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := newTestEngine(t)
	source := `(connect (pad "root" "Ci") (pad (block "plastic") "out"))`

	var want []graph.Connection
	for i := 0; i < 5; i++ {
		s, evalErrs, err := eng.Evaluate(source)
		require.NoError(t, err, "iteration %d", i)
		require.Empty(t, evalErrs, "iteration %d", i)
		if want == nil {
			want = s.Connections()
			continue
		}
		assert.Equal(t, want, s.Connections(), "iteration %d", i)
	}
}

func TestEvaluateResultWarnings(t *testing.T) {
	eng := newTestEngine(t)

	// An unconnected block is reported but does not fail the evaluation.
	res, err := eng.EvaluateResult(`(block "noise")`)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.NotNil(t, res.Scene)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, "noise", res.Warnings[0].Block)

	res, err = eng.EvaluateResult("(+ 1")
	require.NoError(t, err)
	assert.Nil(t, res.Scene)
	assert.NotEmpty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestEvaluateTimeout(t *testing.T) {
	var runs runCounter
	run := runs.next()
	ch := make(chan evalResult) // never sends

	start := time.Now()
	_, _, err := awaitScene(ch, run, 50*time.Millisecond, &runs)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "50ms")
	assert.Less(t, time.Since(start), EvalTimeout)
}

func TestEvaluateSupersededRunIsDropped(t *testing.T) {
	var runs runCounter
	stale := runs.next()
	runs.next()

	ch := make(chan evalResult, 1)
	ch <- evalResult{scene: graph.New("stale")}

	s, _, err := awaitScene(ch, stale, EvalTimeout, &runs)
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Nil(t, s)
}

func TestEvaluateLatestRunIsKept(t *testing.T) {
	var runs runCounter
	run := runs.next()

	ch := make(chan evalResult, 1)
	ch <- evalResult{scene: graph.New("fresh")}

	s, _, err := awaitScene(ch, run, EvalTimeout, &runs)
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.Name)
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "error on line format",
			msg:      "Error on line 5: unexpected token\n",
			wantLine: 5,
			wantMsg:  "unexpected token",
		},
		{
			name:     "no line info",
			msg:      "some generic error",
			wantLine: 0,
			wantMsg:  "some generic error",
		},
		{
			name:     "line format lowercase",
			msg:      "error on line 12: missing paren",
			wantLine: 12,
			wantMsg:  "missing paren",
		},
		{
			name:     "short line format",
			msg:      "line 3: connect: no such block",
			wantLine: 3,
			wantMsg:  "connect: no such block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errString(tt.msg))
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.wantLine, errs[0].Line)
			assert.True(t, strings.Contains(errs[0].Message, tt.wantMsg), "message %q", errs[0].Message)
		})
	}
}

// errString is a simple error type for testing.
type errString string

func (e errString) Error() string { return string(e) }
