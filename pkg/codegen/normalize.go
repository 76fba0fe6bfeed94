package codegen

import (
	"slices"
	"strconv"
	"strings"

	"github.com/chazu/shrimp/pkg/graph"
)

// DefaultMaxHoistPasses bounds the fixed-point loop of Hoist.
const DefaultMaxHoistPasses = 8

// Normalizer rewrites block code into a form the shading language accepts:
// indexed placeholders become named temporaries and brace-initialised
// array assignments become one assignment per element. Both rewrites are
// lexical and assume balanced, well-formed code.
type Normalizer struct {
	// ArraySize returns the declared array size of the property behind a
	// placeholder, 0 when it is not a sized array.
	ArraySize func(name string) int
	// IsOutput reports whether name is an output pad. Outputs resolve to
	// plain variables, so indexing them is left alone and writes reach
	// the variable itself.
	IsOutput func(name string) bool
	// MaxPasses bounds Hoist. Zero means DefaultMaxHoistPasses.
	MaxPasses int
}

// Normalize runs Hoist then ExpandArrayAssignments.
func (n Normalizer) Normalize(code string) string {
	return ExpandArrayAssignments(n.Hoist(code))
}

// Hoist repeats HoistIndexedPlaceholders until nothing is rewritten.
func (n Normalizer) Hoist(code string) string {
	limit := n.MaxPasses
	if limit <= 0 {
		limit = DefaultMaxHoistPasses
	}
	for range limit {
		var rewrites int
		code, rewrites = n.HoistIndexedPlaceholders(code)
		if rewrites == 0 {
			break
		}
	}
	return code
}

// TempName is the temporary holding the value of the indexed placeholder name.
func TempName(name string) string {
	return "$(" + graph.BlockNameToken + ")_" + name + "_value"
}

// HoistIndexedPlaceholders rewrites every "$(x)[" into "temp[" where temp
// is declared at the top of the code and assigned from $(x) just before
// the statement that indexes it. It returns the new code and the number
// of placeholders rewritten.
func (n Normalizer) HoistIndexedPlaceholders(code string) (string, int) {
	live := liveMask(code)
	stmts := statements(code, live)
	phs := placeholdersIn(code, live)

	var edits []edit
	var decls []string
	declared := make(map[string]bool)
	rewrites := 0

	for k, st := range stmts {
		var assigned []string
		for _, p := range phs {
			if p.Start < st.start || p.Start >= st.end {
				continue
			}
			if p.Qualifier != "" || p.Name == graph.BlockNameToken {
				continue
			}
			if next := nextLive(code, live, p.End); next < 0 || code[next] != '[' {
				continue
			}
			if n.IsOutput != nil && n.IsOutput(p.Name) {
				continue
			}
			temp := TempName(p.Name)
			if !declared[p.Name] {
				declared[p.Name] = true
				decl := "$(" + p.Name + ":type) " + temp
				if n.ArraySize != nil {
					if size := n.ArraySize(p.Name); size > 0 {
						decl += "[" + strconv.Itoa(size) + "]"
					}
				}
				decls = append(decls, decl+";")
			}
			if !slices.Contains(assigned, p.Name) {
				assigned = append(assigned, p.Name)
			}
			edits = append(edits, edit{at: p.Start, del: p.End - p.Start, text: temp})
			rewrites++
		}
		if len(assigned) == 0 {
			continue
		}
		at := nextLive(code, live, chainStart(code, live, stmts, k))
		indent := lineIndent(code, at)
		var ins strings.Builder
		for _, name := range assigned {
			ins.WriteString(TempName(name))
			ins.WriteString(" = $(")
			ins.WriteString(name)
			ins.WriteString(");\n")
			ins.WriteString(indent)
		}
		edits = append(edits, edit{at: at, text: ins.String()})
	}

	if rewrites == 0 {
		return code, 0
	}
	out := applyEdits(code, edits)
	return strings.Join(decls, "\n") + "\n" + out, rewrites
}

// ExpandArrayAssignments rewrites "lvalue = { a, b, c };" statements into
// "lvalue[0] = a; lvalue[1] = b; lvalue[2] = c;". A declaration on the
// left ("float v[3] = {...}") keeps its declaration. Commas nested in
// parentheses, brackets or braces do not split elements.
func ExpandArrayAssignments(code string) string {
	live := liveMask(code)
	var edits []edit
	for _, st := range statements(code, live) {
		if st.term != ';' {
			continue
		}
		eq := assignmentBrace(code, live, st)
		if eq < 0 {
			continue
		}
		open := nextLive(code, live, eq+1)
		closing := matchingBrace(code, live, open)
		if closing < 0 || nextLive(code, live, closing+1) != st.end-1 {
			continue
		}
		first := nextLive(code, live, st.start)
		lvalue := strings.TrimSpace(code[first:eq])
		if lvalue == "" {
			continue
		}
		elems := splitTopLevel(code[open+1 : closing])

		target := lvalue
		var lines []string
		if fields := strings.Fields(lvalue); len(fields) > 1 {
			lines = append(lines, lvalue+";")
			target = fields[len(fields)-1]
			if i := strings.IndexByte(target, '['); i > 0 {
				target = target[:i]
			}
		}
		for i, e := range elems {
			lines = append(lines, target+"["+strconv.Itoa(i)+"] = "+e+";")
		}
		indent := lineIndent(code, first)
		edits = append(edits, edit{
			at:   first,
			del:  st.end - first,
			text: strings.Join(lines, "\n"+indent),
		})
	}
	if len(edits) == 0 {
		return code
	}
	return applyEdits(code, edits)
}

// ---------------------------------------------------------------------------
// Lexical helpers
// ---------------------------------------------------------------------------

type edit struct {
	at   int
	del  int
	text string
}

// applyEdits applies non-overlapping edits, back to front.
func applyEdits(code string, edits []edit) string {
	slices.SortStableFunc(edits, func(a, b edit) int {
		if a.at != b.at {
			return b.at - a.at
		}
		return b.del - a.del
	})
	out := code
	for _, e := range edits {
		out = out[:e.at] + e.text + out[e.at+e.del:]
	}
	return out
}

// liveMask marks the bytes that are code, as opposed to comments, string
// literals and preprocessor lines.
func liveMask(code string) []bool {
	live := make([]bool, len(code))
	lineStart := true
	for i := 0; i < len(code); {
		c := code[i]
		switch {
		case c == '/' && i+1 < len(code) && code[i+1] == '/':
			for i < len(code) && code[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(code) && code[i+1] == '*':
			end := strings.Index(code[i+2:], "*/")
			if end < 0 {
				i = len(code)
			} else {
				i += 2 + end + 2
			}
			continue
		case c == '#' && lineStart:
			for i < len(code) && code[i] != '\n' {
				if code[i] == '\\' && i+1 < len(code) && code[i+1] == '\n' {
					i += 2
					continue
				}
				i++
			}
			continue
		case c == '"':
			lineStart = false
			i++
			for i < len(code) && code[i] != '"' {
				if code[i] == '\\' {
					i++
				}
				i++
			}
			i++
			continue
		}
		live[i] = true
		switch c {
		case '\n':
			lineStart = true
		case ' ', '\t', '\r':
		default:
			lineStart = false
		}
		i++
	}
	return live
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// nextLive returns the offset of the first live non-space byte at or after
// i, or -1.
func nextLive(code string, live []bool, i int) int {
	for ; i < len(code); i++ {
		if live[i] && !isSpace(code[i]) {
			return i
		}
	}
	return -1
}

// lineIndent returns the leading whitespace of the line holding offset i.
func lineIndent(code string, i int) string {
	if i < 0 || i > len(code) {
		return ""
	}
	start := strings.LastIndexByte(code[:i], '\n') + 1
	end := start
	for end < len(code) && (code[end] == ' ' || code[end] == '\t') {
		end++
	}
	return code[start:end]
}

// span is a statement: [start, end). term is ';' when the statement ends
// with a semicolon, included in the span.
type span struct {
	start, end int
	term       byte
}

// statements splits code at top-level semicolons and at block braces.
// Braces that open an initializer (after '=') do not split.
func statements(code string, live []bool) []span {
	var out []span
	depth, init := 0, 0
	start := 0
	var prev byte
	for i := 0; i < len(code); i++ {
		if !live[i] {
			continue
		}
		c := code[i]
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '{':
			switch {
			case init > 0 || prev == '=':
				init++
			case depth == 0:
				out = append(out, span{start: start, end: i})
				start = i + 1
			}
		case '}':
			switch {
			case init > 0:
				init--
			case depth == 0:
				out = append(out, span{start: start, end: i})
				start = i + 1
			}
		case ';':
			if depth == 0 && init == 0 {
				out = append(out, span{start: start, end: i + 1, term: ';'})
				start = i + 1
			}
		}
		if !isSpace(c) {
			prev = c
		}
	}
	if start < len(code) {
		out = append(out, span{start: start, end: len(code)})
	}
	return out
}

// chainStart returns where statement k may receive a new statement in
// front of it. Nothing can go between an if body and its else, so for a
// statement opening with else this is the start of the leading if.
func chainStart(code string, live []bool, stmts []span, k int) int {
	for {
		if !startsWithElse(code, live, stmts[k]) || k == 0 {
			return stmts[k].start
		}
		j := k - 1
		if closesBlock(code, stmts[j]) {
			// Walk back to the header of the block closed before the else.
			depth := 0
			for ; j >= 0; j-- {
				if closesBlock(code, stmts[j]) {
					depth++
				} else if opensBlock(code, stmts[j]) {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			if j < 0 {
				return stmts[k].start
			}
		}
		// stmts[j] is the header of the body, or a braceless body holding
		// its own header.
		k = j
	}
}

func startsWithElse(code string, live []bool, st span) bool {
	i := nextLive(code, live, st.start)
	if i < 0 || i >= st.end || !strings.HasPrefix(code[i:], "else") {
		return false
	}
	j := i + len("else")
	return j >= len(code) || !isIdentByte(code[j])
}

func opensBlock(code string, st span) bool {
	return st.term == 0 && st.end < len(code) && code[st.end] == '{'
}

func closesBlock(code string, st span) bool {
	return st.term == 0 && st.end < len(code) && code[st.end] == '}'
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// placeholdersIn returns the placeholders that start in live code.
func placeholdersIn(code string, live []bool) []graph.Placeholder {
	var out []graph.Placeholder
	for _, p := range graph.Placeholders(code) {
		if live[p.Start] {
			out = append(out, p)
		}
	}
	return out
}

// assignmentBrace returns the offset of a top-level plain '=' in st that
// is directly followed by '{', or -1.
func assignmentBrace(code string, live []bool, st span) int {
	depth := 0
	for i := st.start; i < st.end; i++ {
		if !live[i] {
			continue
		}
		switch code[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			if i+1 < len(code) && code[i+1] == '=' {
				return -1
			}
			if i > 0 && strings.IndexByte("=!<>+-*/", code[i-1]) >= 0 {
				return -1
			}
			if next := nextLive(code, live, i+1); next >= 0 && code[next] == '{' {
				return i
			}
			return -1
		}
	}
	return -1
}

// matchingBrace returns the offset of the '}' closing the '{' at open.
func matchingBrace(code string, live []bool, open int) int {
	if open < 0 || code[open] != '{' {
		return -1
	}
	depth := 0
	for i := open; i < len(code); i++ {
		if !live[i] {
			continue
		}
		switch code[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits a list on commas outside (), [] and {} and trims
// the elements. Empty elements are dropped.
func splitTopLevel(list string) []string {
	live := liveMask(list)
	var out []string
	depth, start := 0, 0
	flush := func(end int) {
		if e := strings.TrimSpace(list[start:end]); e != "" {
			out = append(out, e)
		}
	}
	for i := 0; i < len(list); i++ {
		if !live[i] {
			continue
		}
		switch list[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(list))
	return out
}
