package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/shrimp/pkg/codegen"
	"github.com/chazu/shrimp/pkg/graph"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(scene "x" :authors "me")`,
			expect: `(scene "x" "__kw_authors" "me")`,
		},
		{
			name:   "keyword value",
			input:  `(input "in" :type :color)`,
			expect: `(input "in" "__kw_type" "__kw_color")`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(set-type p :type-parent ref)`,
			expect: `(set_type p "__kw_type-parent" ref)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "shading code untouched",
			input:  `(code "$(out) = mix($(a), $(b), $(t)); // ok-ish")`,
			expect: `(code "$(out) = mix($(a), $(b), $(t)); // ok-ish")`,
		},
		{
			name:   "backtick string untouched",
			input:  "(code `float x-y = 1; :kw`)",
			expect: "(code `float x-y = 1; :kw`)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, preprocessSource(tt.input))
		})
	}
}

// evalScene evaluates source and fails the test on any error.
func evalScene(t *testing.T, source string) *graph.Scene {
	t.Helper()
	s, evalErrs, err := newTestEngine(t).Evaluate(source)
	require.NoError(t, err)
	require.Empty(t, evalErrs)
	require.NotNil(t, s)
	return s
}

// evalFails evaluates source and returns the first script error.
func evalFails(t *testing.T, source string) EvalError {
	t.Helper()
	s, evalErrs, err := newTestEngine(t).Evaluate(source)
	require.NoError(t, err)
	require.Nil(t, s)
	require.NotEmpty(t, evalErrs)
	return evalErrs[0]
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

func TestSceneMetadata(t *testing.T) {
	s := evalScene(t, `(scene "marble" :authors "a. author" :about "Noise driven plastic.")`)
	assert.Equal(t, "marble", s.Name)
	assert.Equal(t, "a. author", s.Authors)
	assert.Equal(t, "Noise driven plastic.", s.About)
}

func TestBlockInstantiatesLibraryTemplate(t *testing.T) {
	s := evalScene(t, `
(def shiny (block "plastic" :as "shiny" :x 10 :y -20.5))
(block "plastic")
(block :plastic)
`)
	assert.Equal(t, []string{"root", "shiny", "plastic", "plastic_1"}, s.BlockNames())
	shiny := s.Block("shiny")
	require.NotNil(t, shiny)
	assert.Equal(t, graph.Vec2{X: 10, Y: -20.5}, shiny.Position)
	assert.Equal(t, "0.5", shiny.Input("Kd").Default)
}

func TestVariableReference(t *testing.T) {
	s := evalScene(t, `
(def n (block "noise"))
(def p (block "plastic"))
(connect (pad p "Ks") (pad n "out"))
(connect (pad "root" "Ci") (pad p "out"))
`)
	parent, ok := s.Parent(graph.Pad{Block: "plastic", Property: "Ks"})
	require.True(t, ok)
	assert.Equal(t, graph.Pad{Block: "noise", Property: "out"}, parent)
	assert.Len(t, s.Connections(), 2)
}

func TestConnectPropagatesType(t *testing.T) {
	s := evalScene(t, `(connect (pad "root" "Ci") (pad (block "noise") "out"))`)
	assert.Equal(t, graph.TypeColor, s.Block("noise").Output("out").Type)
}

func TestConnectFold(t *testing.T) {
	s := evalScene(t, `
(def adder (block "add"))
(connect (pad adder "a") (pad (block "constant-float") "out"))
(connect (pad adder "a") (pad (block "constant_float") "out"))
(connect (pad adder "a") (pad (block "noise") "out"))
`)
	f, err := s.Fold(graph.Pad{Block: "add", Property: "a"})
	require.NoError(t, err)
	assert.Equal(t, "+", f.Operator)
	assert.Equal(t, 3, f.Width())
	assert.Equal(t, "a_2", f.Members[2].Pad.Property)
}

func TestCustomBlock(t *testing.T) {
	s := evalScene(t, `
(def tint
  (custom-block "tint" :description "Scales a colour." :author "me"
    (input "in" :type :color :default 1 :parameter true)
    (input "amount" :type "uniform float" :default 0.5)
    (output "out" :type :color :type-parent "in")
    (include "colors.h" "noise.h")
    (code "$(out) = $(in) * $(amount);")))
(connect (pad "root" "Ci") (pad tint "out"))
`)
	b := s.Block("tint")
	require.NotNil(t, b)
	assert.Equal(t, "Scales a colour.", b.Description)
	assert.Equal(t, "me", b.Author)
	assert.Equal(t, []string{"colors.h", "noise.h"}, b.Includes)
	assert.Equal(t, "$(out) = $(in) * $(amount);", b.Code)

	in := b.Input("in")
	require.NotNil(t, in)
	assert.Equal(t, graph.TypeColor, in.Type)
	assert.True(t, in.ShaderParameter)
	assert.Equal(t, "1", in.Default)
	assert.Equal(t, "0.5", b.Input("amount").Default)
	assert.Equal(t, "in", b.Output("out").TypeParent)

	sh, err := codegen.NewAssembler(s, codegen.Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, `#include "colors.h"`)
	assert.Contains(t, sh.Source, "tint_out = tint_in * 0.5;")
	assert.NotContains(t, sh.Source, "$(")
}

func TestCustomBlockFlowAndStorage(t *testing.T) {
	s := evalScene(t, `
(custom-block "sampler"
  (input "v" :type :vector :storage :varying :flow :source :multi "+")
  (output "o" :type :array :extension "float:3" :shader-output true))
`)
	b := s.Block("sampler")
	require.NotNil(t, b)
	v := b.Input("v")
	assert.Equal(t, graph.TypeVector, v.Type)
	assert.Equal(t, graph.StorageVarying, v.Storage)
	assert.Equal(t, graph.FlowFromSource, v.Flow)
	assert.Equal(t, graph.InputFold, v.Kind())
	o := b.Output("o")
	assert.Equal(t, graph.TypeArray, o.Type)
	assert.Equal(t, 3, o.ExtensionSize())
	assert.True(t, o.ShaderOutput)
}

func TestDisconnect(t *testing.T) {
	s := evalScene(t, `
(def p (block "plastic"))
(connect (pad "root" "Ci") (pad p "out"))
(connect (pad "root" "Oi") (pad p "out"))
(disconnect (pad p "out"))
`)
	assert.Empty(t, s.Connections())
}

func TestSetValue(t *testing.T) {
	s := evalScene(t, `
(def p (block "plastic"))
(set-value (pad p "Kd") 0.8)
(set-value (pad p "Cs") "color (1, 0, 0)")
(def k (block "spline"))
(set-value (pad k "knots") [0 0.5 1 1])
`)
	assert.Equal(t, "0.8", s.Block("plastic").Input("Kd").Default)
	assert.Equal(t, "color (1, 0, 0)", s.Block("plastic").Input("Cs").Default)
	assert.Equal(t, "{0, 0.5, 1, 1}", s.Block("spline").Input("knots").Default)
}

func TestSetTypeFollowsTypeParent(t *testing.T) {
	s := evalScene(t, `
(def m (block "mix"))
(set-type (pad m "a") :float)
(def k (block "spline"))
(set-type (pad k "knots") :array :extension "float:8")
`)
	m := s.Block("mix")
	assert.Equal(t, graph.TypeFloat, m.Input("a").Type)
	assert.Equal(t, graph.TypeFloat, m.Input("b").Type)
	assert.Equal(t, graph.TypeFloat, m.Output("out").Type)
	assert.Equal(t, 8, s.Block("spline").Input("knots").ExtensionSize())
}

func TestGroup(t *testing.T) {
	s := evalScene(t, `
(def a (block "noise"))
(def b (block "plastic"))
(group "terms" a "plastic")
`)
	groups := s.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].ID)
	assert.Equal(t, "terms", groups[0].Name)
	assert.Equal(t, []string{"noise", "plastic"}, groups[0].Blocks)
}

func TestBuiltinErrors(t *testing.T) {
	tests := map[string]struct {
		source string
		want   string
	}{
		"unknown library block": {
			source: `(block "plastc")`,
			want:   `did you mean "plastic"`,
		},
		"unknown pad property": {
			source: `(pad (block "noise") "outt")`,
			want:   "no such property",
		},
		"unknown block in pad": {
			source: `(pad "ghost" "out")`,
			want:   "no such block",
		},
		"role mismatch": {
			source: `(def n (block "noise")) (connect (pad n "out") (pad "root" "Ci"))`,
			want:   "role mismatch",
		},
		"connect needs pads": {
			source: `(connect "root" "noise")`,
			want:   "expected pad",
		},
		"bad input type": {
			source: `(custom-block "x" (input "in" :type :wobbly))`,
			want:   "unrecognised type",
		},
		"duplicate property": {
			source: `(custom-block "x" (input "in") (output "in"))`,
			want:   "duplicate name",
		},
		"stray custom-block item": {
			source: `(custom-block "x" 42)`,
			want:   "unexpected",
		},
		"bad flow": {
			source: `(custom-block "x" (input "in" :flow :sideways))`,
			want:   "invalid flow",
		},
		"set-type unknown": {
			source: `(set-type (pad (block "noise") "out") :wobbly)`,
			want:   "unrecognised type",
		},
		"group unknown member": {
			source: `(group "g" "nobody")`,
			want:   "no such block",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := evalFails(t, tt.source)
			assert.Contains(t, e.Error(), tt.want)
		})
	}
}

func TestFullSceneScript(t *testing.T) {
	source := `
; Noise driven plastic with an AOV.
(scene "marble" :authors "me")

(def grain (block "noise" :as "grain"))
(def base (block "plastic"))
(def terms (block "add"))

(connect (pad terms "a") (pad grain "out"))
(connect (pad terms "a") (pad (block "constant-float") "out"))
(set-value (pad "constant_float" "value") 0.25)

(connect (pad base "Ks") (pad terms "sum"))
(connect (pad "root" "Ci") (pad base "out"))
(connect (pad "root" "AOV") (pad grain "out"))
(group "terms" terms "constant_float")
`
	s := evalScene(t, source)
	assert.Empty(t, graph.ValidateAll(s).Errors)

	shaders, err := codegen.NewAssembler(s, codegen.Options{}).BuildAll()
	require.NoError(t, err)
	require.Len(t, shaders, 1)
	assert.Equal(t, "marble", shaders[0].Name)
	assert.Contains(t, shaders[0].Source, "surface\nmarble(")
	assert.Contains(t, shaders[0].Source, "(grain_out + constant_float_out)")
	assert.Contains(t, shaders[0].Source, "aov_preview")
}
