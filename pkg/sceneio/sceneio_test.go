package sceneio

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/shrimp/pkg/codegen"
	"github.com/chazu/shrimp/pkg/graph"
	"github.com/chazu/shrimp/pkg/library"
)

// buildScene returns a scene exercising folds, groups, the AOV pad and
// shader parameters.
func buildScene(t *testing.T) *graph.Scene {
	t.Helper()
	lib, err := library.Default()
	require.NoError(t, err)

	s := graph.New("marble")
	s.Authors = "a. author"
	s.About = "Noise driven plastic."

	for _, name := range []string{"plastic", "add", "noise", "constant_float", "constant_float"} {
		_, err := lib.Instantiate(s, name)
		require.NoError(t, err)
	}
	connect := func(in, out string) {
		inBlock, inProp, _ := strings.Cut(in, ".")
		outBlock, outProp, _ := strings.Cut(out, ".")
		require.NoError(t, s.Connect(graph.Pad{Block: inBlock, Property: inProp}, graph.Pad{Block: outBlock, Property: outProp}))
	}
	connect("add.a", "constant_float.out")
	connect("add.a", "constant_float_1.out")
	connect("add.a", "noise.out")
	connect("plastic.Ks", "add.sum")
	connect("root.Ci", "plastic.out")
	connect("root.AOV", "noise.out")

	s.Block("plastic").Position = graph.Vec2{X: 120, Y: -40}
	s.Block("noise").Rolled = true
	require.NoError(t, s.Block("constant_float").SetPropertyValue("value", "0.25"))
	_, err = s.Group("terms", "constant_float", "constant_float_1")
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := buildScene(t)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, s))
	loaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, s.Name, loaded.Name)
	assert.Equal(t, s.Authors, loaded.Authors)
	assert.Equal(t, s.About, loaded.About)
	assert.Equal(t, s.BlockNames(), loaded.BlockNames())
	assert.Equal(t, s.Connections(), loaded.Connections())
	assert.Equal(t, s.Groups(), loaded.Groups())

	assert.Equal(t, graph.Vec2{X: 120, Y: -40}, loaded.Block("plastic").Position)
	assert.True(t, loaded.Block("noise").Rolled)
	assert.Equal(t, graph.TypeFloat, loaded.Root().Input(graph.AOVPad).Type)
	assert.Equal(t, graph.FlowFromSource, loaded.Root().Input(graph.AOVPad).Flow)

	members, err := loaded.Block("add").MultiInputChildren("a")
	require.NoError(t, err)
	assert.Len(t, members, 3)

	want, err := codegen.NewAssembler(s, codegen.Options{}).BuildAll()
	require.NoError(t, err)
	got, err := codegen.NewAssembler(loaded, codegen.Options{}).BuildAll()
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Source, got[i].Source)
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	s := buildScene(t)
	path := filepath.Join(t.TempDir(), "marble.xml")

	require.NoError(t, SaveFile(path, s))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.Connections(), loaded.Connections())

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".marble.xml.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func TestSaveLoadKeepsTypeFlow(t *testing.T) {
	s := graph.New("flow")
	b := graph.NewBlock("sampler")
	b.AddInput(graph.Property{Name: "v", Type: graph.TypeFloat, Flow: graph.FlowFromSource})
	b.AddInput(graph.Property{Name: "w", Type: graph.TypeFloat})
	b.AddOutput(graph.Property{Name: "out", Type: graph.TypeColor})
	b.Code = "$(out) = $(v) * $(w);"
	_, err := s.AddBlock(b)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, s))
	assert.Equal(t, 2, strings.Count(buf.String(), `flow="source"`), "root AOV pad and v")

	loaded, err := Load(&buf)
	require.NoError(t, err)
	sampler := loaded.Block("sampler")
	require.NotNil(t, sampler)
	assert.Equal(t, graph.FlowFromSource, sampler.Input("v").Flow)
	assert.Equal(t, graph.FlowFromConsumer, sampler.Input("w").Flow)

	// The restored policy still decides which side adopts the type.
	c := graph.NewBlock("c")
	c.AddOutput(graph.Property{Name: "out", Type: graph.TypeVector})
	_, err = loaded.AddBlock(c)
	require.NoError(t, err)
	require.NoError(t, loaded.Connect(graph.Pad{Block: "sampler", Property: "v"}, graph.Pad{Block: "c", Property: "out"}))
	assert.Equal(t, graph.TypeVector, sampler.Input("v").Type)
	assert.Equal(t, graph.TypeVector, loaded.Block("c").Output("out").Type)
}

func TestLoadRenamedRoot(t *testing.T) {
	doc := `<shrimp name="x">
  <network>
    <block name="out" root="1" position_x="0" position_y="0">
      <input name="Ci" type="color" default="0.5"><connection parent="c" output="out"/></input>
      <input name="Bogus" type="float"/>
    </block>
    <block name="c" position_x="1" position_y="2">
      <output name="out" type="color"/>
      <rsl_code>$(out) = 1;</rsl_code>
    </block>
  </network>
</shrimp>`
	s, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "out", s.Root().Name)
	assert.Equal(t, "0.5", s.Root().Input("Ci").Default)
	parent, ok := s.Parent(graph.Pad{Block: "out", Property: "Ci"})
	require.True(t, ok)
	assert.Equal(t, graph.Pad{Block: "c", Property: "out"}, parent)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"malformed": `<shrimp name="x"><network>`,
		"unknown parent": `<shrimp name="x"><network>
			<block name="a"><input name="in" type="float"><connection parent="ghost" output="out"/></input></block>
		</network></shrimp>`,
		"duplicate block": `<shrimp name="x"><network>
			<block name="a"/><block name="a"/>
		</network></shrimp>`,
		"two roots": `<shrimp name="x"><network>
			<block name="r1" root="1"/><block name="r2" root="1"/>
		</network></shrimp>`,
		"unknown group member": `<shrimp name="x"><network>
			<group id="1"><block_name>nobody</block_name></group>
		</network></shrimp>`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}
