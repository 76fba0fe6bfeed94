package engine

import (
	"fmt"
	"strconv"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/shrimp/pkg/graph"
	"github.com/chazu/shrimp/pkg/library"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms scene script source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: custom-block -> custom_block
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpBlockRef names a block of the scene being built.
type sexpBlockRef struct {
	name string
}

func (b *sexpBlockRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(blockref %q)", b.name)
}
func (b *sexpBlockRef) Type() *zygo.RegisteredType { return nil }

// sexpPad addresses one property of a block.
type sexpPad struct {
	pad graph.Pad
}

func (p *sexpPad) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(pad %q %q)", p.pad.Block, p.pad.Property)
}
func (p *sexpPad) Type() *zygo.RegisteredType { return nil }

// sexpPropertyDecl is an (input ...) or (output ...) form waiting to be
// attached by custom-block.
type sexpPropertyDecl struct {
	output bool
	prop   graph.Property
}

func (d *sexpPropertyDecl) SexpString(ps *zygo.PrintState) string {
	role := "input"
	if d.output {
		role = "output"
	}
	return fmt.Sprintf("(%s %q :type %s)", role, d.prop.Name, d.prop.Type)
}
func (d *sexpPropertyDecl) Type() *zygo.RegisteredType { return nil }

// sexpCode carries a code template into custom-block.
type sexpCode struct {
	text string
}

func (c *sexpCode) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(code %q)", c.text)
}
func (c *sexpCode) Type() *zygo.RegisteredType { return nil }

// sexpInclude carries header names into custom-block.
type sexpInclude struct {
	files []string
}

func (i *sexpInclude) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(include %q)", strings.Join(i.files, " "))
}
func (i *sexpInclude) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_color) and plain strings ("color").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toBool accepts booleans, numbers and the strings understood by block
// definition files.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpInt:
		return v.Val != 0, nil
	case *zygo.SexpStr:
		switch strings.ToLower(v.S) {
		case "1", "true", "yes":
			return true, nil
		case "0", "false", "no", "":
			return false, nil
		}
	case *zygo.SexpSentinel:
		// A trailing keyword with no value is a flag.
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toValueString renders a property value. Strings pass through, numbers
// are formatted and lists become "{a, b, ...}" array literals.
func toValueString(s zygo.Sexp) (string, error) {
	switch v := s.(type) {
	case *zygo.SexpStr:
		return v.S, nil
	case *zygo.SexpInt:
		return strconv.FormatInt(v.Val, 10), nil
	case *zygo.SexpFloat:
		return strconv.FormatFloat(v.Val, 'g', -1, 64), nil
	case *zygo.SexpArray, *zygo.SexpPair:
		items, err := sexpListToSlice(s)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			p, err := toValueString(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	}
	return "", fmt.Errorf("expected value, got %T (%s)", s, s.SexpString(nil))
}

// toBlockName accepts a block reference or a block name.
func toBlockName(s zygo.Sexp) (string, error) {
	switch v := s.(type) {
	case *sexpBlockRef:
		return v.name, nil
	case *zygo.SexpStr:
		return v.S, nil
	}
	return "", fmt.Errorf("expected block reference, got %T (%s)", s, s.SexpString(nil))
}

// toPad extracts a pad from a sexpPad.
func toPad(s zygo.Sexp) (graph.Pad, error) {
	if p, ok := s.(*sexpPad); ok {
		return p.pad, nil
	}
	return graph.Pad{}, fmt.Errorf("expected pad, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// stringArgs converts every positional argument to a string.
func stringArgs(args []zygo.Sexp) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		s, err := toString(a)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Property declarations
// ---------------------------------------------------------------------------

// parsePropertyDecl builds a property from (input|output "name" :type ...).
func parsePropertyDecl(role string, args []zygo.Sexp) (graph.Property, error) {
	pa := parseArgs(args)
	if len(pa.positional) != 1 {
		return graph.Property{}, fmt.Errorf("%s: expected a property name", role)
	}
	name, err := toString(pa.positional[0])
	if err != nil {
		return graph.Property{}, fmt.Errorf("%s: name: %w", role, err)
	}
	p := graph.Property{Name: name, Type: graph.TypeFloat}

	if v, ok := pa.kw["type"]; ok {
		t, err := toKeywordString(v)
		if err != nil {
			return p, fmt.Errorf("%s %s: type: %w", role, name, err)
		}
		if !p.SetType(t) {
			return p, fmt.Errorf("%s %s: unrecognised type %q", role, name, t)
		}
	}
	if v, ok := pa.kw["extension"]; ok {
		ext, err := toKeywordString(v)
		if err != nil {
			return p, fmt.Errorf("%s %s: extension: %w", role, name, err)
		}
		if !p.SetTypeExtension(ext) {
			return p, fmt.Errorf("%s %s: invalid type extension %q", role, name, ext)
		}
	}
	if v, ok := pa.kw["storage"]; ok {
		st, err := toKeywordString(v)
		if err != nil {
			return p, fmt.Errorf("%s %s: storage: %w", role, name, err)
		}
		if !p.SetStorage(st) {
			return p, fmt.Errorf("%s %s: unrecognised storage %q", role, name, st)
		}
	}
	if v, ok := pa.kw["default"]; ok {
		if p.Default, err = toValueString(v); err != nil {
			return p, fmt.Errorf("%s %s: default: %w", role, name, err)
		}
	}
	if v, ok := pa.kw["description"]; ok {
		if p.Description, err = toString(v); err != nil {
			return p, fmt.Errorf("%s %s: description: %w", role, name, err)
		}
	}
	if v, ok := pa.kw["type-parent"]; ok {
		if p.TypeParent, err = toKeywordString(v); err != nil {
			return p, fmt.Errorf("%s %s: type-parent: %w", role, name, err)
		}
	}

	if role == "input" {
		if v, ok := pa.kw["multi"]; ok {
			if p.MultiOperator, err = toString(v); err != nil {
				return p, fmt.Errorf("input %s: multi: %w", name, err)
			}
		}
		if v, ok := pa.kw["parameter"]; ok {
			if p.ShaderParameter, err = toBool(v); err != nil {
				return p, fmt.Errorf("input %s: parameter: %w", name, err)
			}
		}
		if v, ok := pa.kw["flow"]; ok {
			flow, err := toKeywordString(v)
			if err != nil {
				return p, fmt.Errorf("input %s: flow: %w", name, err)
			}
			f, ok := graph.ParseTypeFlow(flow)
			if !ok {
				return p, fmt.Errorf("input %s: invalid flow %q, expected consumer or source", name, flow)
			}
			p.Flow = f
		}
	} else if v, ok := pa.kw["shader-output"]; ok {
		if p.ShaderOutput, err = toBool(v); err != nil {
			return p, fmt.Errorf("output %s: shader-output: %w", name, err)
		}
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs all scene-scripting builtins into a zygomys
// environment. The builtins edit s during evaluation; (block ...) clones
// templates from lib.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *graph.Scene, lib *library.Library) {

	// -----------------------------------------------------------------------
	// (scene "marble" :authors "me" :about "Noise driven plastic.")
	// -----------------------------------------------------------------------
	env.AddFunction("scene", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			n, err := toString(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("scene: name: %w", err)
			}
			s.Name = n
		}
		if v, ok := pa.kw["authors"]; ok {
			a, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("scene: authors: %w", err)
			}
			s.Authors = a
		}
		if v, ok := pa.kw["about"]; ok {
			a, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("scene: about: %w", err)
			}
			s.About = a
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (block "plastic" :as "shiny" :x 10 :y 20)
	// -----------------------------------------------------------------------
	env.AddFunction("block", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("block: expected a library block name")
		}
		tmpl, err := toKeywordString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("block: %w", err)
		}
		// Library names are snake_case; scripts may spell them kebab-case.
		b, err := lib.Clone(strings.ReplaceAll(tmpl, "-", "_"))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("block: %w", err)
		}
		if v, ok := pa.kw["as"]; ok {
			as, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("block: as: %w", err)
			}
			b.Name = as
		}
		if err := applyPosition(b, pa); err != nil {
			return zygo.SexpNull, fmt.Errorf("block: %w", err)
		}
		added, err := s.AddBlock(b)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("block: %w", err)
		}
		return &sexpBlockRef{name: added.Name}, nil
	})

	// -----------------------------------------------------------------------
	// (input "in" :type :color :default 1 :parameter true)
	// (output "out" :type :color)
	// -----------------------------------------------------------------------
	for _, role := range []string{"input", "output"} {
		output := role == "output"
		env.AddFunction(role, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			p, err := parsePropertyDecl(role, args)
			if err != nil {
				return zygo.SexpNull, err
			}
			return &sexpPropertyDecl{output: output, prop: p}, nil
		})
	}

	// -----------------------------------------------------------------------
	// (code "$(out) = $(in) * 0.5;")
	// -----------------------------------------------------------------------
	env.AddFunction("code", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		parts, err := stringArgs(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("code: %w", err)
		}
		return &sexpCode{text: strings.Join(parts, "\n")}, nil
	})

	// -----------------------------------------------------------------------
	// (include "colors.h" "noise.h")
	// -----------------------------------------------------------------------
	env.AddFunction("include", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		files, err := stringArgs(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("include: %w", err)
		}
		return &sexpInclude{files: files}, nil
	})

	// -----------------------------------------------------------------------
	// (custom-block "tint" :description "..." (input ...) (output ...) (code ...))
	// -----------------------------------------------------------------------
	env.AddFunction("custom_block", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) == 0 {
			return zygo.SexpNull, fmt.Errorf("custom-block: expected a block name")
		}
		blockName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("custom-block: name: %w", err)
		}
		b := graph.NewBlock(blockName)

		for _, item := range pa.positional[1:] {
			switch v := item.(type) {
			case *sexpPropertyDecl:
				if b.Property(v.prop.Name) != nil {
					return zygo.SexpNull, fmt.Errorf("custom-block %s: property %q: %w", blockName, v.prop.Name, graph.ErrDuplicateName)
				}
				if v.output {
					b.AddOutput(v.prop)
				} else {
					b.AddInput(v.prop)
				}
			case *sexpCode:
				if b.Code != "" {
					b.Code += "\n"
				}
				b.Code += v.text
			case *sexpInclude:
				b.Includes = append(b.Includes, v.files...)
			default:
				return zygo.SexpNull, fmt.Errorf("custom-block %s: unexpected %s", blockName, item.SexpString(nil))
			}
		}
		for _, field := range []struct {
			kw  string
			dst *string
		}{
			{"description", &b.Description},
			{"author", &b.Author},
			{"usage", &b.Usage},
		} {
			if v, ok := pa.kw[field.kw]; ok {
				if *field.dst, err = toString(v); err != nil {
					return zygo.SexpNull, fmt.Errorf("custom-block %s: %s: %w", blockName, field.kw, err)
				}
			}
		}
		if err := applyPosition(b, pa); err != nil {
			return zygo.SexpNull, fmt.Errorf("custom-block %s: %w", blockName, err)
		}
		added, err := s.AddBlock(b)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("custom-block: %w", err)
		}
		return &sexpBlockRef{name: added.Name}, nil
	})

	// -----------------------------------------------------------------------
	// (pad blk "out") or (pad "root" "Ci")
	// -----------------------------------------------------------------------
	env.AddFunction("pad", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("pad: expected a block and a property name, got %d arguments", len(args))
		}
		blockName, err := toBlockName(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("pad: %w", err)
		}
		prop, err := toString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("pad: property: %w", err)
		}
		b, err := s.Lookup(blockName)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("pad: %w", err)
		}
		if b.Property(prop) == nil {
			return zygo.SexpNull, fmt.Errorf("pad: %s.%s: %w", blockName, prop, graph.ErrNoSuchProperty)
		}
		return &sexpPad{pad: graph.Pad{Block: blockName, Property: prop}}, nil
	})

	// -----------------------------------------------------------------------
	// (connect (pad "root" "Ci") (pad blk "out"))
	// -----------------------------------------------------------------------
	env.AddFunction("connect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("connect: expected an input pad and an output pad, got %d arguments", len(args))
		}
		in, err := toPad(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: input: %w", err)
		}
		out, err := toPad(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: output: %w", err)
		}
		if err := s.Connect(in, out); err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (disconnect (pad blk "in")) => number of edges removed
	// -----------------------------------------------------------------------
	env.AddFunction("disconnect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("disconnect: expected a pad")
		}
		p, err := toPad(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("disconnect: %w", err)
		}
		return &zygo.SexpInt{Val: int64(s.Disconnect(p))}, nil
	})

	// -----------------------------------------------------------------------
	// (set-value (pad blk "Kd") 0.8)
	// -----------------------------------------------------------------------
	env.AddFunction("set_value", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("set-value: expected a pad and a value")
		}
		p, err := toPad(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-value: %w", err)
		}
		v, err := toValueString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-value: %w", err)
		}
		b, err := s.Lookup(p.Block)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-value: %w", err)
		}
		if err := b.SetPropertyValue(p.Property, v); err != nil {
			return zygo.SexpNull, fmt.Errorf("set-value: %w", err)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (set-type (pad blk "in") :color) or (set-type pad :array :extension "float:4")
	// -----------------------------------------------------------------------
	env.AddFunction("set_type", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("set-type: expected a pad and a type")
		}
		p, err := toPad(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-type: %w", err)
		}
		text, err := toKeywordString(pa.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-type: %w", err)
		}
		b, err := s.Lookup(p.Block)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("set-type: %w", err)
		}
		prop := b.Property(p.Property)
		if prop == nil {
			return zygo.SexpNull, fmt.Errorf("set-type: %s: %w", p, graph.ErrNoSuchProperty)
		}
		trial := *prop
		if !trial.SetType(text) {
			return zygo.SexpNull, fmt.Errorf("set-type: %s: unrecognised type %q", p, text)
		}
		if v, ok := pa.kw["extension"]; ok {
			ext, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("set-type: extension: %w", err)
			}
			if !trial.SetTypeExtension(ext) {
				return zygo.SexpNull, fmt.Errorf("set-type: %s: invalid type extension %q", p, ext)
			}
		}
		if err := b.SetPropertyType(p.Property, trial.Type, trial.Extension); err != nil {
			return zygo.SexpNull, fmt.Errorf("set-type: %w", err)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (group "terms" blk "noise") => group id
	// -----------------------------------------------------------------------
	env.AddFunction("group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("group: expected a group name")
		}
		groupName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("group: name: %w", err)
		}
		members := make([]string, 0, len(args)-1)
		for _, a := range args[1:] {
			m, err := toBlockName(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("group %s: %w", groupName, err)
			}
			members = append(members, m)
		}
		id, err := s.Group(groupName, members...)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("group %s: %w", groupName, err)
		}
		return &zygo.SexpInt{Val: int64(id)}, nil
	})
}

// applyPosition reads the optional :x and :y canvas position.
func applyPosition(b *graph.Block, pa kwArgs) error {
	if v, ok := pa.kw["x"]; ok {
		x, err := toFloat64(v)
		if err != nil {
			return fmt.Errorf("x: %w", err)
		}
		b.Position.X = x
	}
	if v, ok := pa.kw["y"]; ok {
		y, err := toFloat64(v)
		if err != nil {
			return fmt.Errorf("y: %w", err)
		}
		b.Position.Y = y
	}
	return nil
}
