package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/shrimp/pkg/graph"
)

// constantBlock returns a block with a single output "out" of type t.
func constantBlock(name string, t graph.Type, value string) *graph.Block {
	b := graph.NewBlock(name)
	b.AddInput(graph.Property{Name: "value", Type: t, Default: value})
	b.AddOutput(graph.Property{Name: "out", Type: t})
	b.Code = "$(out) = $(value);"
	return b
}

func addBlock(t *testing.T, s *graph.Scene, b *graph.Block) *graph.Block {
	t.Helper()
	added, err := s.AddBlock(b)
	require.NoError(t, err)
	return added
}

func connect(t *testing.T, s *graph.Scene, in, out string) {
	t.Helper()
	inBlock, inProp, _ := strings.Cut(in, ".")
	outBlock, outProp, _ := strings.Cut(out, ".")
	require.NoError(t, s.Connect(
		graph.Pad{Block: inBlock, Property: inProp},
		graph.Pad{Block: outBlock, Property: outProp},
	))
}

func TestBuildSurfaceFromSingleConstant(t *testing.T) {
	s := graph.New("test")
	addBlock(t, s, constantBlock("constant", graph.TypeColor, "0.2"))
	connect(t, s, "root.Ci", "constant.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)

	assert.Equal(t, "test", sh.Name)
	assert.Equal(t, []string{"constant"}, sh.Blocks)
	assert.Equal(t, 1, strings.Count(sh.Source, "Ci = constant_out;"))
	assert.Contains(t, sh.Source, "Oi = color (1, 1, 1);")
	assert.Contains(t, sh.Source, "constant_out = color (0.2, 0.2, 0.2);")
	assert.Contains(t, sh.Source, "\tcolor constant_out;\n")
	assert.Contains(t, sh.Source, "surface\ntest(")
	assert.Contains(t, sh.Source, "#include \"shrimp_aov.h\"")
	assert.Contains(t, sh.Source, AOVParametersMacro)
	assert.Contains(t, sh.Source, AOVInitMacro+";")
	assert.NotContains(t, sh.Source, "$(")
}

func TestBuildEmptyStage(t *testing.T) {
	s := graph.New("test")
	addBlock(t, s, constantBlock("constant", graph.TypeColor, "1"))
	connect(t, s, "root.Ci", "constant.out")

	a := NewAssembler(s, Options{})
	_, err := a.BuildFile(graph.StageDisplacement)
	assert.ErrorIs(t, err, ErrEmptyStage)

	shaders, err := a.BuildAll()
	require.NoError(t, err)
	require.Len(t, shaders, 1)
	assert.Equal(t, graph.StageSurface, shaders[0].Stage)
}

func TestBuildAllNothingConnected(t *testing.T) {
	_, err := NewAssembler(graph.New("empty"), Options{}).BuildAll()
	assert.ErrorIs(t, err, ErrEmptyStage)
}

func TestBuildStageNames(t *testing.T) {
	s := graph.New("my scene")
	addBlock(t, s, constantBlock("c", graph.TypeColor, "1"))
	connect(t, s, "root.Ci", "c.out")
	connect(t, s, "root.Cl", "c.out")

	shaders, err := NewAssembler(s, Options{}).BuildAll()
	require.NoError(t, err)
	require.Len(t, shaders, 2)
	assert.Equal(t, "my_scene", shaders[0].Name)
	assert.Equal(t, "my_scene_light", shaders[1].Name)
	assert.Contains(t, shaders[1].Source, "light\nmy_scene_light(")
	assert.Contains(t, shaders[1].Source, "Cl = c_out;")
}

func TestBuildShaderParameter(t *testing.T) {
	s := graph.New("test")
	b := graph.NewBlock("diffuse")
	b.AddInput(graph.Property{Name: "Kd", Type: graph.TypeFloat, Default: "0.8", ShaderParameter: true, Storage: graph.StorageUniform})
	b.AddInput(graph.Property{Name: "tint", Type: graph.TypeColor, Default: "1", ShaderParameter: true})
	b.AddOutput(graph.Property{Name: "out", Type: graph.TypeColor})
	b.Code = "$(out) = $(Kd) * $(tint) * diffuse(normalize(N));"
	addBlock(t, s, b)
	connect(t, s, "root.Ci", "diffuse.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "\tfloat diffuse_Kd = 0.8;\n")
	assert.Contains(t, sh.Source, "\tvarying color diffuse_tint = color (1, 1, 1);\n")
	assert.Contains(t, sh.Source, "diffuse_out = diffuse_Kd * diffuse_tint * diffuse(normalize(N));")
}

func TestBuildConnectedParameterIsNotFormal(t *testing.T) {
	s := graph.New("test")
	b := graph.NewBlock("mix")
	b.AddInput(graph.Property{Name: "a", Type: graph.TypeColor, Default: "0", ShaderParameter: true})
	b.AddOutput(graph.Property{Name: "out", Type: graph.TypeColor})
	b.Code = "$(out) = $(a);"
	addBlock(t, s, b)
	addBlock(t, s, constantBlock("c", graph.TypeColor, "1"))
	connect(t, s, "mix.a", "c.out")
	connect(t, s, "root.Ci", "mix.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.NotContains(t, sh.Source, "mix_a =")
	assert.Contains(t, sh.Source, "mix_out = c_out;")
	assert.Equal(t, []string{"c", "mix"}, sh.Blocks)
}

func TestBuildEmitsSharedBlockOnce(t *testing.T) {
	s := graph.New("test")
	addBlock(t, s, constantBlock("d", graph.TypeColor, "1"))
	for _, name := range []string{"b", "c"} {
		addBlock(t, s, constantBlock(name, graph.TypeColor, "0"))
		connect(t, s, name+".value", "d.out")
	}
	a := graph.NewBlock("a")
	a.AddInput(graph.Property{Name: "x", Type: graph.TypeColor})
	a.AddInput(graph.Property{Name: "y", Type: graph.TypeColor})
	a.AddOutput(graph.Property{Name: "out", Type: graph.TypeColor})
	a.Code = "$(out) = $(x) + $(y);"
	addBlock(t, s, a)
	connect(t, s, "a.x", "b.out")
	connect(t, s, "a.y", "c.out")
	connect(t, s, "root.Ci", "a.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, sh.Blocks)
	assert.Equal(t, 1, strings.Count(sh.Source, "d_out = "))
	assert.Contains(t, sh.Source, "a_out = b_out + c_out;")
}

func TestBuildFoldInput(t *testing.T) {
	s := graph.New("test")
	add := graph.NewBlock("add")
	add.AddInput(graph.Property{Name: "a", Type: graph.TypeFloat, MultiOperator: "+"})
	add.AddOutput(graph.Property{Name: "sum", Type: graph.TypeFloat})
	add.Code = "$(sum) = $(a);"
	addBlock(t, s, add)
	addBlock(t, s, constantBlock("c1", graph.TypeFloat, "1"))
	addBlock(t, s, constantBlock("c2", graph.TypeFloat, "2"))
	connect(t, s, "add.a", "c1.out")
	connect(t, s, "add.a", "c2.out")
	connect(t, s, "root.Ci", "add.sum")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "add_sum = (c1_out + c2_out);")
	assert.Equal(t, []string{"c1", "c2", "add"}, sh.Blocks)
}

func TestBuildShaderOutputSourceIsString(t *testing.T) {
	s := graph.New("test")
	lightCat := graph.NewBlock("category")
	lightCat.AddOutput(graph.Property{Name: "ambience", Type: graph.TypeString, ShaderOutput: true})
	addBlock(t, s, lightCat)

	illum := graph.NewBlock("illum")
	illum.AddInput(graph.Property{Name: "cat", Type: graph.TypeString})
	illum.AddOutput(graph.Property{Name: "out", Type: graph.TypeColor})
	illum.Code = "$(out) = 0;\nilluminance($(cat), P) { $(out) += Cl; }"
	addBlock(t, s, illum)
	connect(t, s, "illum.cat", "category.ambience")
	connect(t, s, "root.Ci", "illum.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "illuminance(\"ambience\", P)")
	assert.Equal(t, []string{"illum"}, sh.Blocks)
}

func TestBuildShaderOutputIsFormalOutput(t *testing.T) {
	s := graph.New("test")
	b := graph.NewBlock("gloss")
	b.AddOutput(graph.Property{Name: "out", Type: graph.TypeColor})
	b.AddOutput(graph.Property{Name: "specular", Type: graph.TypeColor, ShaderOutput: true})
	b.Code = "$(specular) = 1;\n$(out) = $(specular);"
	addBlock(t, s, b)
	connect(t, s, "root.Ci", "gloss.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "output varying color specular = 0;")
	assert.Contains(t, sh.Source, "gloss_out = specular;")
	assert.NotContains(t, sh.Source, "color gloss_specular")
}

func TestBuildAOVPreview(t *testing.T) {
	s := graph.New("test")
	addBlock(t, s, constantBlock("c", graph.TypeColor, "1"))
	addBlock(t, s, constantBlock("f", graph.TypeFloat, "0.5"))
	connect(t, s, "root.Ci", "c.out")
	connect(t, s, "root.AOV", "f.out")

	typ, ok := s.Root().PropertyType(graph.AOVPad)
	require.True(t, ok)
	assert.Equal(t, graph.TypeFloat, typ)

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "output varying float aov_preview = 0;")
	assert.Contains(t, sh.Source, "aov_preview = f_out;")
	assert.Contains(t, sh.Blocks, "f")
}

func TestBuildRendererDefines(t *testing.T) {
	s := graph.New("test")
	addBlock(t, s, constantBlock("c", graph.TypeColor, "1"))
	connect(t, s, "root.Ci", "c.out")

	opts := Options{
		Renderers: []RendererDefine{{Name: "aqsis", Code: 1}, {Name: "3delight", Code: 2}},
		Renderer:  "aqsis",
		AOVHeader: "<aov.h>",
	}
	sh, err := NewAssembler(s, opts).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "#define RENDERER_AQSIS 1\n")
	assert.Contains(t, sh.Source, "#define RENDERER_3DELIGHT 2\n")
	assert.Contains(t, sh.Source, "#define RENDERER RENDERER_AQSIS\n")
	assert.Contains(t, sh.Source, "#include <aov.h>\n")
}

func TestBuildIncludesAreDeduplicated(t *testing.T) {
	s := graph.New("test")
	for _, name := range []string{"a", "b"} {
		b := constantBlock(name, graph.TypeColor, "1")
		b.SetIncludes("noises.h")
		addBlock(t, s, b)
	}
	connect(t, s, "root.Ci", "a.out")
	connect(t, s, "root.Oi", "b.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sh.Source, "#include \"noises.h\""))
}

func TestBuildUnresolvedTokens(t *testing.T) {
	s := graph.New("test")
	b := constantBlock("c", graph.TypeColor, "1")
	b.Code = "$(out) = $(nope) + $(value:size);"
	addBlock(t, s, b)
	connect(t, s, "root.Ci", "c.out")

	_, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	var unresolved *UnresolvedTokensError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, []string{"$(nope)", "$(value:size)"}, unresolved.Tokens())
	assert.Equal(t, "c", unresolved.Blocks[0].Block)
}

func TestBuildCycle(t *testing.T) {
	s := graph.New("test")
	addBlock(t, s, constantBlock("a", graph.TypeColor, "1"))
	addBlock(t, s, constantBlock("b", graph.TypeColor, "1"))
	connect(t, s, "a.value", "b.out")
	connect(t, s, "b.value", "a.out")
	connect(t, s, "root.Ci", "a.out")

	_, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	var cyc *graph.CyclicGraphError
	require.True(t, errors.As(err, &cyc))
	assert.Contains(t, cyc.Blocks, "a")
	assert.Contains(t, cyc.Blocks, "b")
}

func TestBuildHoistsIndexedInput(t *testing.T) {
	s := graph.New("test")
	b := graph.NewBlock("pick")
	b.AddInput(graph.Property{Name: "v", Type: graph.TypeColor, Default: "1"})
	b.AddOutput(graph.Property{Name: "out", Type: graph.TypeFloat})
	b.Code = "$(out) = $(v)[0];"
	addBlock(t, s, b)
	connect(t, s, "root.Oi", "pick.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "\tcolor pick_v_value;\n")
	assert.Contains(t, sh.Source, "\tpick_v_value = color (1, 1, 1);\n")
	assert.Contains(t, sh.Source, "\tpick_out = pick_v_value[0];\n")
}

func TestBuildWritesIndexedOutputInPlace(t *testing.T) {
	s := graph.New("test")
	b := graph.NewBlock("fill")
	vals := b.AddOutput(graph.Property{Name: "vals", Type: graph.TypeArray})
	require.True(t, vals.SetTypeExtension("float:3"))
	b.AddOutput(graph.Property{Name: "out", Type: graph.TypeColor})
	b.Code = "$(vals)[0] = 1;\n$(out) = color($(vals)[0]);"
	addBlock(t, s, b)
	connect(t, s, "root.Ci", "fill.out")

	sh, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Contains(t, sh.Source, "fill_vals[0] = 1;")
	assert.Contains(t, sh.Source, "fill_out = color(fill_vals[0]);")
	assert.NotContains(t, sh.Source, "fill_vals_value")
}

func TestBuildDoesNotModifyScene(t *testing.T) {
	s := graph.New("test")
	b := addBlock(t, s, constantBlock("c", graph.TypeColor, "1"))
	b.Code = "$(out) = {1, 2, 3};"
	connect(t, s, "root.Ci", "c.out")

	_, err := NewAssembler(s, Options{}).BuildFile(graph.StageSurface)
	require.NoError(t, err)
	assert.Equal(t, "$(out) = {1, 2, 3};", s.Block("c").Code)
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "my_shader", Identifier("my shader"))
	assert.Equal(t, "_3d", Identifier("3d"))
	assert.Equal(t, "shrimp", Identifier("  "))
	assert.Equal(t, "a_b", Identifier("a-b"))
}
