package graph

import "strings"

// BlockNameToken is the placeholder replaced by a block's SLName.
const BlockNameToken = "blockname"

// Placeholder is a $(name) or $(name:qualifier) token in a code template.
type Placeholder struct {
	Start     int // offset of "$("
	End       int // offset just past ")"
	Name      string
	Qualifier string
}

// Token returns the placeholder as written in the template.
func (p Placeholder) Token() string {
	if p.Qualifier == "" {
		return "$(" + p.Name + ")"
	}
	return "$(" + p.Name + ":" + p.Qualifier + ")"
}

// Placeholders returns every placeholder of code in order. A "$(" with no
// closing parenthesis on the same line is not a placeholder.
func Placeholders(code string) []Placeholder {
	var out []Placeholder
	for i := 0; i < len(code); {
		j := strings.Index(code[i:], "$(")
		if j < 0 {
			break
		}
		start := i + j
		inner := code[start+2:]
		end := strings.IndexAny(inner, ")\n($")
		if end < 0 || inner[end] != ')' {
			i = start + 2
			continue
		}
		name, qual, _ := strings.Cut(inner[:end], ":")
		out = append(out, Placeholder{
			Start:     start,
			End:       start + 2 + end + 1,
			Name:      strings.TrimSpace(name),
			Qualifier: strings.TrimSpace(qual),
		})
		i = start + 2 + end + 1
	}
	return out
}

// ExpandPlaceholders replaces every placeholder resolve knows about.
// Tokens resolve rejects are left in place and returned, in order of
// first appearance.
func ExpandPlaceholders(code string, resolve func(Placeholder) (string, bool)) (string, []string) {
	var b strings.Builder
	var unresolved []string
	seen := make(map[string]bool)
	last := 0
	for _, p := range Placeholders(code) {
		b.WriteString(code[last:p.Start])
		if v, ok := resolve(p); ok {
			b.WriteString(v)
		} else {
			tok := p.Token()
			b.WriteString(code[p.Start:p.End])
			if !seen[tok] {
				seen[tok] = true
				unresolved = append(unresolved, tok)
			}
		}
		last = p.End
	}
	b.WriteString(code[last:])
	return b.String(), unresolved
}
