package graph

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// InputKind distinguishes ordinary inputs from fold (multi-operator) inputs.
type InputKind int

const (
	InputSingle InputKind = iota // at most one upstream source
	InputFold                    // fans in any number of sources with an operator
)

// Property is a typed input or output pad of a block.
type Property struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Type        Type          `json:"type"`
	Extension   TypeExtension `json:"extension"` // meaningful only when Type == TypeArray
	Storage     Storage       `json:"storage"`
	Default     string        `json:"default,omitempty"`

	ShaderParameter bool `json:"shader_parameter,omitempty"` // inputs only
	ShaderOutput    bool `json:"shader_output,omitempty"`    // outputs only

	MultiOperator string   `json:"multi,omitempty"`        // fold operator of a fan-in input
	MultiParent   string   `json:"multi_parent,omitempty"` // head pad of a fold clone
	TypeParent    string   `json:"type_parent,omitempty"`  // sibling whose type this pad mirrors
	Flow          TypeFlow `json:"flow,omitempty"`
}

// Kind reports whether p fans in several sources.
func (p *Property) Kind() InputKind {
	if p.MultiOperator != "" {
		return InputFold
	}
	return InputSingle
}

// IsFoldClone reports whether p was synthesized for a fold input.
func (p *Property) IsFoldClone() bool {
	return p.MultiParent != ""
}

// SetType parses a whitespace separated token list and keeps the last
// token naming a known type. When no token is recognised the type is left
// unchanged and false is returned.
func (p *Property) SetType(text string) bool {
	found := false
	var t Type
	for _, tok := range strings.Fields(text) {
		if parsed, ok := ParseType(tok); ok {
			t = parsed
			found = true
		}
	}
	if !found {
		slog.Warn("unrecognised property type", "property", p.Name, "type", text)
		return false
	}
	p.Type = t
	return true
}

// SetTypeExtension parses "elementType[:size]". It is only meaningful when
// p is an array.
func (p *Property) SetTypeExtension(text string) bool {
	if p.Type != TypeArray {
		slog.Warn("type extension set on non-array property", "property", p.Name, "type", p.Type)
		return false
	}
	ext, err := ParseTypeExtension(text)
	if err != nil {
		slog.Warn("invalid type extension", "property", p.Name, "err", err)
		return false
	}
	p.Extension = ext
	return true
}

// ExtensionSize returns the declared array size, 0 when unsized or not an array.
func (p *Property) ExtensionSize() int {
	if p.Type != TypeArray {
		return 0
	}
	return p.Extension.Size
}

// SetStorage parses the storage class.
func (p *Property) SetStorage(text string) bool {
	s, ok := ParseStorage(text)
	if !ok {
		slog.Warn("unrecognised storage class", "property", p.Name, "storage", text)
		return false
	}
	p.Storage = s
	return true
}

// TypeForDeclaration is the type used when declaring a variable for p:
// the element type for arrays, the type itself otherwise.
func (p *Property) TypeForDeclaration() string {
	if p.Type == TypeArray {
		return p.Extension.Element.String()
	}
	return p.Type.String()
}

// Declaration returns "type name" or "elem name[size]" for arrays.
func (p *Property) Declaration(name string) string {
	decl := p.TypeForDeclaration() + " " + name
	if p.Type == TypeArray && p.Extension.Size > 0 {
		decl += "[" + strconv.Itoa(p.Extension.Size) + "]"
	}
	return decl
}

// ValueSL renders the default value as a shading-language literal. Tuple
// types get a constructor call; a single number is splatted across the
// components. Text that is not a numeric tuple is returned unchanged.
func (p *Property) ValueSL() string {
	n := p.Type.Components()
	if n == 0 {
		return p.Default
	}
	nums, ok := parseTuple(p.Default)
	if !ok {
		slog.Debug("default value is not a numeric tuple", "property", p.Name, "value", p.Default)
		return p.Default
	}
	switch {
	case len(nums) == n:
	case len(nums) == 1 && p.Type != TypeMatrix:
		v := nums[0]
		nums = make([]string, n)
		for i := range nums {
			nums[i] = v
		}
	default:
		slog.Warn("wrong component count in default value",
			"property", p.Name, "type", p.Type, "want", n, "got", len(nums))
		return p.Default
	}
	return fmt.Sprintf("%s (%s)", p.Type, strings.Join(nums, ", "))
}

// parseTuple splits text on commas and whitespace and checks that every
// field is a number. The original spelling of each number is kept.
func parseTuple(text string) ([]string, bool) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, false
	}
	for _, f := range fields {
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return nil, false
		}
	}
	return fields, true
}
