// Package codegen assembles RenderMan shading-language source from a shader
// graph.
package codegen

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"
	"unicode"

	"github.com/chazu/shrimp/pkg/graph"
)

// DefaultAOVHeader is the header declaring the AOV macros.
const DefaultAOVHeader = "shrimp_aov.h"

// AOV macros provided by the AOV header.
const (
	AOVParametersMacro = "SHRIMP_AOV_PARAMETERS"
	AOVInitMacro       = "SHRIMP_AOV_INIT"
)

// AOVPreviewOutput is the surface output parameter fed by the root AOV pad.
const AOVPreviewOutput = "aov_preview"

//go:embed shader.sl.tmpl
var shaderTemplateSource string

var shaderTemplate = template.Must(template.New("shader.sl").Parse(shaderTemplateSource))

// RendererDefine is a renderer constant emitted as "#define RENDERER_<NAME> <code>".
type RendererDefine struct {
	Name string
	Code int
}

// Options configures an Assembler.
type Options struct {
	// Renderers are emitted as RENDERER_<NAME> constants.
	Renderers []RendererDefine
	// Renderer, when set, is emitted as "#define RENDERER RENDERER_<NAME>".
	Renderer string
	// AOVHeader overrides DefaultAOVHeader.
	AOVHeader string
	// ShaderName overrides the name derived from the scene.
	ShaderName string
}

// Shader is the generated source of one stage.
type Shader struct {
	Stage  graph.Stage
	Name   string
	Source string
	// Blocks lists the blocks that contributed code, in emission order.
	Blocks []string
}

// Assembler turns a scene into shading-language source, one shader per
// stage. It reads the scene and never modifies it.
type Assembler struct {
	scene *graph.Scene
	opts  Options
}

// NewAssembler returns an assembler for s.
func NewAssembler(s *graph.Scene, opts Options) *Assembler {
	if opts.AOVHeader == "" {
		opts.AOVHeader = DefaultAOVHeader
	}
	return &Assembler{scene: s, opts: opts}
}

// ShaderName returns the shader name used for stage.
func (a *Assembler) ShaderName(stage graph.Stage) string {
	base := a.opts.ShaderName
	if base == "" {
		base = a.scene.Name
	}
	base = Identifier(base)
	if stage == graph.StageSurface {
		return base
	}
	return base + "_" + stage.String()
}

// Identifier maps text onto a valid shading-language identifier.
func Identifier(text string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(text) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	id := b.String()
	if id == "" {
		return "shrimp"
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "_" + id
	}
	return id
}

// BuildAll builds every stage whose sinks are connected, in stage order.
// It returns ErrEmptyStage when no stage is connected at all.
func (a *Assembler) BuildAll() ([]*Shader, error) {
	var shaders []*Shader
	for _, stage := range graph.Stages {
		sh, err := a.BuildFile(stage)
		if errors.Is(err, ErrEmptyStage) {
			continue
		}
		if err != nil {
			return nil, err
		}
		shaders = append(shaders, sh)
	}
	if len(shaders) == 0 {
		return nil, fmt.Errorf("build %q: %w", a.scene.Name, ErrEmptyStage)
	}
	return shaders, nil
}

// BuildFile generates the shader of one stage. It fails with ErrEmptyStage
// when neither sink of the stage is connected, with a
// *graph.CyclicGraphError when a contributing block depends on itself and
// with an *UnresolvedTokensError when block code names unknown pads.
func (a *Assembler) BuildFile(stage graph.Stage) (*Shader, error) {
	s := a.scene
	root := s.Root()
	if root == nil {
		return nil, fmt.Errorf("build %s: %w", stage, graph.ErrNoSuchBlock)
	}

	sinks := stage.Sinks()
	var parents []graph.Pad
	for _, sink := range sinks {
		if parent, ok := s.Parent(graph.Pad{Block: root.Name, Property: sink.Pad}); ok {
			parents = append(parents, parent)
		}
	}
	if len(parents) == 0 {
		return nil, fmt.Errorf("build %s: %w", stage, ErrEmptyStage)
	}

	aovPad := graph.Pad{Block: root.Name, Property: graph.AOVPad}
	aovParent, aov := s.Parent(aovPad)
	aov = aov && stage == graph.StageSurface && root.Input(graph.AOVPad) != nil
	if aov {
		parents = append(parents, aovParent)
	}

	for _, p := range parents {
		if s.IsShaderOutput(p) {
			continue
		}
		if err := s.FindCycle(p.Block); err != nil {
			return nil, fmt.Errorf("build %s: %w", stage, err)
		}
	}

	b := newBuild(s)
	visited := make(map[string]bool)
	for _, p := range parents {
		if s.IsShaderOutput(p) {
			continue
		}
		for _, name := range s.UpwardBlocks(p.Block, visited) {
			b.declare(s.Block(name))
		}
	}

	// Sink assignments.
	var sinkCode []string
	for _, sink := range sinks {
		prop := root.Input(sink.Pad)
		if prop == nil {
			continue
		}
		value := b.inputValue(root, prop)
		sinkCode = append(sinkCode, fmt.Sprintf("%s = %s;", sink.Target, value))
	}
	if aov {
		prop := root.Input(graph.AOVPad)
		b.outputs = append(b.outputs, fmt.Sprintf("output varying %s %s = 0", prop.TypeForDeclaration(), AOVPreviewOutput))
		sinkCode = append(sinkCode, fmt.Sprintf("%s = %s;", AOVPreviewOutput, b.inputValue(root, prop)))
	}
	b.body.WriteString("\t/* " + root.Name + " */\n")
	for _, line := range sinkCode {
		b.body.WriteString("\t" + line + "\n")
	}

	if len(b.unresolved) > 0 {
		err := &UnresolvedTokensError{Stage: stage, Blocks: b.unresolved}
		slog.Error("shader assembly failed", "stage", stage, "err", err)
		return nil, err
	}

	source, err := a.render(stage, b)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", stage, err)
	}
	slog.Debug("shader assembled", "stage", stage, "blocks", len(b.emitted))
	return &Shader{
		Stage:  stage,
		Name:   a.ShaderName(stage),
		Source: source,
		Blocks: b.emitted,
	}, nil
}

type shaderLayout struct {
	Name          string
	Stage         string
	Defines       []string
	Includes      []string
	AOVParameters string
	Parameters    []string
	AOVInit       string
	Locals        []string
	Body          string
}

func (a *Assembler) render(stage graph.Stage, b *build) (string, error) {
	layout := shaderLayout{
		Name:          a.ShaderName(stage),
		Stage:         stage.String(),
		AOVParameters: AOVParametersMacro,
		AOVInit:       AOVInitMacro,
		Parameters:    append(slices.Clone(b.params), b.outputs...),
		Locals:        b.locals,
		Body:          b.body.String(),
	}
	for _, r := range a.opts.Renderers {
		layout.Defines = append(layout.Defines, fmt.Sprintf("RENDERER_%s %d", rendererConstant(r.Name), r.Code))
	}
	if a.opts.Renderer != "" {
		layout.Defines = append(layout.Defines, "RENDERER RENDERER_"+rendererConstant(a.opts.Renderer))
	}
	layout.Includes = append(layout.Includes, includeLine(a.opts.AOVHeader))
	for _, inc := range b.includes {
		if line := includeLine(inc); !slices.Contains(layout.Includes, line) {
			layout.Includes = append(layout.Includes, line)
		}
	}

	var buf bytes.Buffer
	if err := shaderTemplate.Execute(&buf, layout); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func rendererConstant(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, strings.TrimSpace(name))
}

// includeLine quotes a header name unless it is already quoted or bracketed.
func includeLine(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "\"") || strings.HasPrefix(name, "<") {
		return name
	}
	return "\"" + name + "\""
}

// ---------------------------------------------------------------------------
// Per-build state
// ---------------------------------------------------------------------------

// build owns the accumulators of one BuildFile call.
type build struct {
	scene *graph.Scene

	written  map[string]bool
	emitting map[string]bool
	emitted  []string

	includes []string
	params   []string
	outputs  []string
	locals   []string
	localSet map[string]bool

	body       strings.Builder
	unresolved []BlockTokens
}

func newBuild(s *graph.Scene) *build {
	return &build{
		scene:    s,
		written:  make(map[string]bool),
		emitting: make(map[string]bool),
		localSet: make(map[string]bool),
	}
}

// declare collects the includes, formal parameters, formal outputs and
// local variables of a contributing block.
func (b *build) declare(blk *graph.Block) {
	if blk == nil {
		return
	}
	for _, inc := range blk.Includes {
		if !slices.Contains(b.includes, inc) {
			b.includes = append(b.includes, inc)
		}
	}
	for _, in := range blk.Inputs {
		if !in.ShaderParameter {
			continue
		}
		if _, connected := b.scene.Parent(graph.Pad{Block: blk.Name, Property: in.Name}); connected {
			continue
		}
		b.params = append(b.params, parameterDecl(in, blk.VarName(in.Name), in.ValueSL()))
	}
	for _, out := range blk.Outputs {
		if out.ShaderOutput {
			value := out.ValueSL()
			if value == "" {
				value = "0"
			}
			b.outputs = append(b.outputs, "output "+parameterDecl(out, out.Name, value))
			continue
		}
		decl := out.Declaration(blk.VarName(out.Name))
		if !b.localSet[decl] {
			b.localSet[decl] = true
			b.locals = append(b.locals, decl)
		}
	}
}

func parameterDecl(p *graph.Property, name, value string) string {
	decl := p.Declaration(name)
	if p.Storage == graph.StorageVarying {
		decl = "varying " + decl
	}
	if value == "" {
		return decl
	}
	return decl + " = " + value
}

// emit appends the code of the named block after the code of every block
// feeding it. Each block is emitted once per build.
func (b *build) emit(name string) {
	if b.written[name] || b.emitting[name] {
		return
	}
	blk := b.scene.Block(name)
	if blk == nil {
		return
	}
	b.emitting[name] = true
	defer delete(b.emitting, name)

	for _, in := range blk.Inputs {
		if parent, ok := b.scene.Parent(graph.Pad{Block: name, Property: in.Name}); ok && !b.scene.IsShaderOutput(parent) {
			b.emit(parent.Block)
		}
	}

	norm := Normalizer{
		ArraySize: func(prop string) int {
			if p := blk.Property(prop); p != nil {
				return p.ExtensionSize()
			}
			return 0
		},
		IsOutput: func(prop string) bool { return blk.Output(prop) != nil },
	}
	code := norm.Normalize(blk.Code)
	code, unresolved := graph.ExpandPlaceholders(code, func(ph graph.Placeholder) (string, bool) {
		return b.resolve(blk, ph)
	})
	if len(unresolved) > 0 {
		b.unresolved = append(b.unresolved, BlockTokens{Block: name, Tokens: unresolved})
	}
	// Array defaults only become brace lists once substituted.
	code = ExpandArrayAssignments(code)

	b.body.WriteString("\t/* " + name + " */\n")
	for _, line := range strings.Split(strings.Trim(code, "\n"), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			b.body.WriteString("\n")
			continue
		}
		b.body.WriteString("\t" + line + "\n")
	}
	b.body.WriteString("\n")

	b.written[name] = true
	b.emitted = append(b.emitted, name)
}

// resolve substitutes one placeholder of blk's code.
func (b *build) resolve(blk *graph.Block, ph graph.Placeholder) (string, bool) {
	if ph.Name == graph.BlockNameToken && ph.Qualifier == "" {
		return blk.SLName(), true
	}
	prop := blk.Property(ph.Name)
	if prop == nil {
		return "", false
	}
	switch ph.Qualifier {
	case "":
	case "type":
		return prop.TypeForDeclaration(), true
	default:
		return "", false
	}
	if in := blk.Input(ph.Name); in != nil {
		return b.inputValue(blk, in), true
	}
	if prop.ShaderOutput {
		return prop.Name, true
	}
	return blk.VarName(prop.Name), true
}

// inputValue is the expression an input stands for: the feeding output,
// the folded sources of a fan-in input, the shader parameter, or the
// literal default.
func (b *build) inputValue(blk *graph.Block, in *graph.Property) string {
	if in.Kind() == graph.InputFold {
		return b.foldValue(blk, in)
	}
	if v, ok := b.sourceValue(graph.Pad{Block: blk.Name, Property: in.Name}); ok {
		return v
	}
	return ownValue(blk, in)
}

func ownValue(blk *graph.Block, in *graph.Property) string {
	if in.ShaderParameter {
		return blk.VarName(in.Name)
	}
	return in.ValueSL()
}

// sourceValue resolves a connected input to the variable of its source,
// emitting the source block first. A shader-output source yields its
// name as a string literal.
func (b *build) sourceValue(in graph.Pad) (string, bool) {
	parent, ok := b.scene.Parent(in)
	if !ok {
		return "", false
	}
	if b.scene.IsShaderOutput(parent) {
		return "\"" + parent.Property + "\"", true
	}
	src := b.scene.Block(parent.Block)
	if src == nil {
		return "", false
	}
	b.emit(parent.Block)
	return src.VarName(parent.Property), true
}

func (b *build) foldValue(blk *graph.Block, head *graph.Property) string {
	members, err := blk.MultiInputChildren(head.Name)
	if err != nil {
		return ownValue(blk, head)
	}
	var values []string
	for _, m := range members {
		if v, ok := b.sourceValue(graph.Pad{Block: blk.Name, Property: m.Name}); ok {
			values = append(values, v)
			continue
		}
		if m.IsFoldClone() {
			continue
		}
		if v := ownValue(blk, m); v != "" {
			values = append(values, v)
		}
	}
	switch len(values) {
	case 0:
		return ownValue(blk, head)
	case 1:
		return values[0]
	}
	return "(" + strings.Join(values, " "+head.MultiOperator+" ") + ")"
}
