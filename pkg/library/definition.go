package library

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chazu/shrimp/pkg/graph"
)

// FunctionType is the only block definition type understood.
const FunctionType = "function"

// PropertyDef is the XML form of an input or output pad. Attributes that
// are not recognised land in Extra and are logged.
type PropertyDef struct {
	Name            string `xml:"name,attr"`
	Type            string `xml:"type,attr,omitempty"`
	TypeExtension   string `xml:"type_extension,attr,omitempty"`
	Storage         string `xml:"storage,attr,omitempty"`
	Description     string `xml:"description,attr,omitempty"`
	Default         string `xml:"default,attr,omitempty"`
	Value           string `xml:"value,attr,omitempty"`
	Multi           string `xml:"multi,attr,omitempty"`
	MultiParent     string `xml:"multi_parent,attr,omitempty"`
	ShaderParameter string `xml:"shader_parameter,attr,omitempty"`
	ShaderOutput    string `xml:"shader_output,attr,omitempty"`
	TypeParent      string `xml:"type_parent,attr,omitempty"`
	Flow            string `xml:"flow,attr,omitempty"`

	Extra []xml.Attr `xml:",any,attr"`
}

// Definition is the XML form of a predefined block.
type Definition struct {
	XMLName     xml.Name      `xml:"shrimp"`
	Type        string        `xml:"type,attr"`
	Name        string        `xml:"name,attr"`
	Description string        `xml:"description,attr,omitempty"`
	Author      string        `xml:"author,attr,omitempty"`
	Inputs      []PropertyDef `xml:"input"`
	Outputs     []PropertyDef `xml:"output"`
	Code        string        `xml:"rsl_code"`
	Include     string        `xml:"rsl_include,omitempty"`
	Usage       string        `xml:"usage,omitempty"`
}

// ParseDefinition decodes one block definition.
func ParseDefinition(r io.Reader) (*Definition, error) {
	var d Definition
	if err := xml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode block definition: %w", err)
	}
	if d.Type != "" && d.Type != FunctionType {
		slog.Warn("unexpected block definition type", "block", d.Name, "type", d.Type)
	}
	if strings.TrimSpace(d.Name) == "" {
		return nil, fmt.Errorf("decode block definition: missing name")
	}
	return &d, nil
}

// Block builds the graph block described by d.
func (d *Definition) Block() *graph.Block {
	b := graph.NewBlock(strings.TrimSpace(d.Name))
	b.Description = d.Description
	b.Author = d.Author
	b.Usage = strings.TrimSpace(d.Usage)
	b.Code = trimCode(d.Code)
	b.SetIncludes(d.Include)
	for _, in := range d.Inputs {
		b.AddInput(in.Property(b.Name))
	}
	for _, out := range d.Outputs {
		b.AddOutput(out.Property(b.Name))
	}
	return b
}

// Property converts the XML pad into a graph property. Bad values are
// logged and ignored.
func (pd PropertyDef) Property(block string) graph.Property {
	p := graph.Property{
		Name:          strings.TrimSpace(pd.Name),
		Description:   pd.Description,
		Default:       pd.Default,
		MultiOperator: strings.TrimSpace(pd.Multi),
		MultiParent:   strings.TrimSpace(pd.MultiParent),
		TypeParent:    strings.TrimSpace(pd.TypeParent),
	}
	if p.Default == "" {
		p.Default = pd.Value
	}
	if pd.Type != "" {
		p.SetType(pd.Type)
	}
	if pd.TypeExtension != "" {
		p.SetTypeExtension(pd.TypeExtension)
	}
	if pd.Storage != "" {
		p.SetStorage(pd.Storage)
	}
	if pd.Flow != "" {
		if f, ok := graph.ParseTypeFlow(pd.Flow); ok {
			p.Flow = f
		} else {
			slog.Warn("ignoring invalid type flow", "block", block, "property", p.Name, "flow", pd.Flow)
		}
	}
	p.ShaderParameter = parseBool(block, p.Name, "shader_parameter", pd.ShaderParameter)
	p.ShaderOutput = parseBool(block, p.Name, "shader_output", pd.ShaderOutput)
	for _, a := range pd.Extra {
		slog.Warn("ignoring unknown property attribute",
			"block", block, "property", p.Name, "attribute", a.Name.Local, "value", a.Value)
	}
	return p
}

// DefinitionOf is the inverse of Definition.Block.
func DefinitionOf(b *graph.Block) *Definition {
	d := &Definition{
		Type:        FunctionType,
		Name:        b.Name,
		Description: b.Description,
		Author:      b.Author,
		Code:        b.Code,
		Include:     strings.Join(b.Includes, " "),
		Usage:       b.Usage,
	}
	for _, p := range b.Inputs {
		d.Inputs = append(d.Inputs, PropertyDefOf(p))
	}
	for _, p := range b.Outputs {
		d.Outputs = append(d.Outputs, PropertyDefOf(p))
	}
	return d
}

// PropertyDefOf returns the XML form of p.
func PropertyDefOf(p *graph.Property) PropertyDef {
	pd := PropertyDef{
		Name:        p.Name,
		Type:        p.Type.String(),
		Storage:     p.Storage.String(),
		Description: p.Description,
		Default:     p.Default,
		Multi:       p.MultiOperator,
		MultiParent: p.MultiParent,
		TypeParent:  p.TypeParent,
	}
	if p.Type == graph.TypeArray {
		pd.TypeExtension = p.Extension.String()
	}
	if p.Flow != graph.FlowFromConsumer {
		pd.Flow = p.Flow.String()
	}
	if p.ShaderParameter {
		pd.ShaderParameter = "1"
	}
	if p.ShaderOutput {
		pd.ShaderOutput = "1"
	}
	return pd
}

// Encode writes d as indented XML.
func (d *Definition) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode block %q: %w", d.Name, err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func parseBool(block, prop, attr, v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	case "1", "true", "yes":
		return true
	}
	slog.Warn("ignoring malformed boolean attribute",
		"block", block, "property", prop, "attribute", attr, "value", v)
	return false
}

// trimCode drops the blank lines around a code template, trailing
// spaces and the common indentation.
func trimCode(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	indent := -1
	for i, l := range lines {
		l = strings.TrimRight(l, " \t")
		lines[i] = l
		if l == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, l := range lines {
		if len(l) >= indent && indent > 0 {
			lines[i] = l[indent:]
		}
	}
	return strings.Join(lines, "\n")
}
