package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Vec2 is a canvas position. The code generator ignores it.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Block is a node of the shader graph: ordered input and output pads plus
// a code template whose $(name) placeholders refer to those pads.
type Block struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Author      string      `json:"author,omitempty"`
	Usage       string      `json:"usage,omitempty"`
	Root        bool        `json:"root,omitempty"`
	Inputs      []*Property `json:"inputs"`
	Outputs     []*Property `json:"outputs"`
	Code        string      `json:"code,omitempty"`
	Includes    []string    `json:"includes,omitempty"`
	Position    Vec2        `json:"position"`
	Rolled      bool        `json:"rolled,omitempty"`
}

// NewBlock returns an empty custom block.
func NewBlock(name string) *Block {
	return &Block{Name: name}
}

// SLName is the identifier prefix of every variable generated for b.
func (b *Block) SLName() string {
	return strings.ReplaceAll(b.Name, " ", "_")
}

// VarName is the generated variable name of the pad called prop.
func (b *Block) VarName(prop string) string {
	return b.SLName() + "_" + prop
}

// AddInput appends an input pad. Duplicate names are not checked.
func (b *Block) AddInput(p Property) *Property {
	np := p
	b.Inputs = append(b.Inputs, &np)
	return &np
}

// AddOutput appends an output pad. Duplicate names are not checked.
func (b *Block) AddOutput(p Property) *Property {
	np := p
	b.Outputs = append(b.Outputs, &np)
	return &np
}

// Input returns the input called name, or nil.
func (b *Block) Input(name string) *Property {
	for _, p := range b.Inputs {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Output returns the output called name, or nil.
func (b *Block) Output(name string) *Property {
	for _, p := range b.Outputs {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Property returns the input or, failing that, the output called name.
func (b *Block) Property(name string) *Property {
	if p := b.Input(name); p != nil {
		return p
	}
	return b.Output(name)
}

// PropertyNames lists input names followed by output names.
func (b *Block) PropertyNames() []string {
	names := make([]string, 0, len(b.Inputs)+len(b.Outputs))
	for _, p := range b.Inputs {
		names = append(names, p.Name)
	}
	for _, p := range b.Outputs {
		names = append(names, p.Name)
	}
	return names
}

func (b *Block) inputNames() []string {
	return lo.Map(b.Inputs, func(p *Property, _ int) string { return p.Name })
}

func (b *Block) lookup(name string) (*Property, error) {
	if p := b.Property(name); p != nil {
		return p, nil
	}
	err := lookupError("property", name, b.Name, b.PropertyNames(), ErrNoSuchProperty)
	slog.Error("property lookup failed", "err", err)
	return nil, err
}

// SetIncludes replaces the include list with the whitespace separated
// header names in text.
func (b *Block) SetIncludes(text string) {
	b.Includes = strings.Fields(text)
}

// ---------------------------------------------------------------------------
// Fold inputs
// ---------------------------------------------------------------------------

// AddMultiInput synthesizes a clone of the fold input parent and returns
// the new pad's name. The clone has the parent's type and storage and an
// empty default.
func (b *Block) AddMultiInput(parent string) (string, error) {
	head := b.Input(parent)
	if head == nil {
		err := lookupError("input", parent, b.Name, b.inputNames(), ErrNoSuchProperty)
		slog.Error("cannot add fold input", "err", err)
		return "", err
	}

	var name string
	for n := 1; ; n++ {
		name = fmt.Sprintf("%s_%d", parent, n)
		if b.Property(name) == nil {
			break
		}
	}

	clone := &Property{
		Name:        name,
		Description: head.Description,
		Type:        head.Type,
		Extension:   head.Extension,
		Storage:     head.Storage,
		MultiParent: parent,
		Flow:        head.Flow,
	}

	// Keep the fold members adjacent, in creation order.
	at := len(b.Inputs)
	for i, p := range b.Inputs {
		if p.Name == parent || p.MultiParent == parent {
			at = i + 1
		}
	}
	b.Inputs = slices.Insert(b.Inputs, at, clone)
	return name, nil
}

// MultiInputChildren returns the members of the fold input name: the pad
// itself followed by its clones in creation order.
func (b *Block) MultiInputChildren(name string) ([]*Property, error) {
	head := b.Input(name)
	if head == nil {
		err := lookupError("input", name, b.Name, b.inputNames(), ErrNoSuchProperty)
		slog.Error("fold member lookup failed", "err", err)
		return nil, err
	}
	members := []*Property{head}
	for _, p := range b.Inputs {
		if p.MultiParent == name {
			members = append(members, p)
		}
	}
	return members, nil
}

// RemoveInput deletes the input called name.
func (b *Block) RemoveInput(name string) bool {
	i := slices.IndexFunc(b.Inputs, func(p *Property) bool { return p.Name == name })
	if i < 0 {
		return false
	}
	b.Inputs = slices.Delete(b.Inputs, i, i+1)
	return true
}

// ---------------------------------------------------------------------------
// Accessors by property name
// ---------------------------------------------------------------------------

// PropertyType returns the type of the named property.
func (b *Block) PropertyType(name string) (Type, bool) {
	p, err := b.lookup(name)
	if err != nil {
		return TypeFloat, false
	}
	return p.Type, true
}

// SetPropertyType changes the type of the named property and of every
// sibling that mirrors it through type_parent or as a fold clone.
func (b *Block) SetPropertyType(name string, t Type, ext TypeExtension) error {
	p, err := b.lookup(name)
	if err != nil {
		return err
	}
	if !t.Valid() {
		return fmt.Errorf("set type of %s.%s: invalid type %d", b.Name, name, int(t))
	}
	b.applyType(p, t, ext, map[*Property]bool{})
	return nil
}

func (b *Block) applyType(p *Property, t Type, ext TypeExtension, seen map[*Property]bool) {
	if seen[p] {
		return
	}
	seen[p] = true
	p.Type = t
	if t == TypeArray {
		p.Extension = ext
	}
	for _, q := range b.Inputs {
		if q.TypeParent == p.Name || q.MultiParent == p.Name {
			b.applyType(q, t, ext, seen)
		}
	}
	for _, q := range b.Outputs {
		if q.TypeParent == p.Name {
			b.applyType(q, t, ext, seen)
		}
	}
}

// SetPropertyTypeText is SetPropertyType for textual type names.
func (b *Block) SetPropertyTypeText(name, text string) error {
	p, err := b.lookup(name)
	if err != nil {
		return err
	}
	trial := *p
	if !trial.SetType(text) {
		return fmt.Errorf("set type of %s.%s: unrecognised type %q", b.Name, name, text)
	}
	return b.SetPropertyType(name, trial.Type, p.Extension)
}

// PropertyStorage returns the storage class of the named property.
func (b *Block) PropertyStorage(name string) (Storage, bool) {
	p, err := b.lookup(name)
	if err != nil {
		return StorageVarying, false
	}
	return p.Storage, true
}

// SetPropertyStorage sets the storage class of the named property.
func (b *Block) SetPropertyStorage(name string, s Storage) error {
	p, err := b.lookup(name)
	if err != nil {
		return err
	}
	p.Storage = s
	return nil
}

// PropertyValue returns the default value of the named property.
func (b *Block) PropertyValue(name string) (string, bool) {
	p, err := b.lookup(name)
	if err != nil {
		return "", false
	}
	return p.Default, true
}

// SetPropertyValue sets the default value of the named property.
func (b *Block) SetPropertyValue(name, value string) error {
	p, err := b.lookup(name)
	if err != nil {
		return err
	}
	p.Default = value
	return nil
}
