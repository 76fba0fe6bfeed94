package graph

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Pad addresses a property of a block.
type Pad struct {
	Block    string `json:"block"`
	Property string `json:"property"`
}

func (p Pad) String() string {
	return p.Block + "." + p.Property
}

// Connection is one edge of the DAG, from an output to the input it feeds.
type Connection struct {
	In  Pad `json:"in"`
	Out Pad `json:"out"`
}

// Group clusters blocks on the canvas. The code generator ignores groups.
type Group struct {
	ID     int      `json:"id"`
	Name   string   `json:"name,omitempty"`
	Blocks []string `json:"blocks"`
}

// Scene is a shader network: uniquely named blocks, a single root block,
// and a mapping from each connected input pad to the output feeding it.
type Scene struct {
	Name    string
	Authors string
	About   string

	blocks map[string]*Block
	order  []string
	root   string

	dag map[Pad]Pad

	groups    map[int]*Group
	groupOf   map[string]int
	nextGroup int
}

// New creates a scene holding only a root block.
func New(name string) *Scene {
	s := &Scene{
		Name:      name,
		blocks:    make(map[string]*Block),
		dag:       make(map[Pad]Pad),
		groups:    make(map[int]*Group),
		groupOf:   make(map[string]int),
		nextGroup: 1,
	}
	root := NewRootBlock(DefaultRootName)
	s.blocks[root.Name] = root
	s.order = append(s.order, root.Name)
	s.root = root.Name
	return s
}

// Root returns the root block.
func (s *Scene) Root() *Block {
	return s.blocks[s.root]
}

// Block returns the block called name, or nil.
func (s *Scene) Block(name string) *Block {
	return s.blocks[name]
}

// Lookup returns the block called name or a *LookupError.
func (s *Scene) Lookup(name string) (*Block, error) {
	if b := s.blocks[name]; b != nil {
		return b, nil
	}
	return nil, lookupError("block", name, "", s.order, ErrNoSuchBlock)
}

// Blocks returns every block in insertion order.
func (s *Scene) Blocks() []*Block {
	out := make([]*Block, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.blocks[name])
	}
	return out
}

// BlockNames returns every block name in insertion order.
func (s *Scene) BlockNames() []string {
	return slices.Clone(s.order)
}

// BlockCount returns the number of blocks including the root.
func (s *Scene) BlockCount() int {
	return len(s.order)
}

// UniqueBlockName returns base if unused, otherwise base with the lowest
// free numeric suffix.
func (s *Scene) UniqueBlockName(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "block"
	}
	if _, taken := s.blocks[base]; !taken {
		return base
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s_%d", base, n)
		if _, taken := s.blocks[name]; !taken {
			return name
		}
	}
}

// AddBlock inserts b, renaming it if its name is already taken.
func (s *Scene) AddBlock(b *Block) (*Block, error) {
	if b.Root {
		return nil, fmt.Errorf("add block %q: %w", b.Name, ErrRootBlock)
	}
	b.Name = s.UniqueBlockName(b.Name)
	s.blocks[b.Name] = b
	s.order = append(s.order, b.Name)
	return b, nil
}

// RemoveBlock disconnects every pad of the named block and deletes it.
func (s *Scene) RemoveBlock(name string) error {
	b, err := s.Lookup(name)
	if err != nil {
		slog.Error("remove block failed", "err", err)
		return err
	}
	if b.Root {
		return fmt.Errorf("remove block %q: %w", name, ErrRootBlock)
	}
	for _, p := range b.Inputs {
		s.unlink(Pad{name, p.Name})
	}
	for _, p := range b.Outputs {
		s.unlink(Pad{name, p.Name})
	}
	s.ungroupBlock(name)
	delete(s.blocks, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return nil
}

// RenameBlock renames a block and rewrites every edge and group that
// references it.
func (s *Scene) RenameBlock(oldName, newName string) error {
	b, err := s.Lookup(oldName)
	if err != nil {
		slog.Error("rename block failed", "err", err)
		return err
	}
	newName = strings.TrimSpace(newName)
	if newName == oldName {
		return nil
	}
	if newName == "" {
		return fmt.Errorf("rename block %q: empty name", oldName)
	}
	if _, taken := s.blocks[newName]; taken {
		return fmt.Errorf("rename block %q to %q: %w", oldName, newName, ErrDuplicateName)
	}

	rewritten := make(map[Pad]Pad, len(s.dag))
	for in, out := range s.dag {
		if in.Block == oldName {
			in.Block = newName
		}
		if out.Block == oldName {
			out.Block = newName
		}
		rewritten[in] = out
	}
	s.dag = rewritten

	if id, ok := s.groupOf[oldName]; ok {
		delete(s.groupOf, oldName)
		s.groupOf[newName] = id
		g := s.groups[id]
		g.Blocks[slices.Index(g.Blocks, oldName)] = newName
	}

	delete(s.blocks, oldName)
	b.Name = newName
	s.blocks[newName] = b
	s.order[slices.Index(s.order, oldName)] = newName
	if s.root == oldName {
		s.root = newName
	}
	return nil
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

// resolve checks that in is an input and out an output of existing blocks.
func (s *Scene) resolve(in, out Pad) (*Block, *Property, *Block, *Property, error) {
	inBlock, err := s.Lookup(in.Block)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	outBlock, err := s.Lookup(out.Block)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	inProp := inBlock.Input(in.Property)
	if inProp == nil {
		kind := "input"
		if inBlock.Output(in.Property) != nil {
			return nil, nil, nil, nil, fmt.Errorf("%s is an output, not an input: %w", in, ErrRoleMismatch)
		}
		return nil, nil, nil, nil, lookupError(kind, in.Property, in.Block, inBlock.inputNames(), ErrNoSuchProperty)
	}
	outProp := outBlock.Output(out.Property)
	if outProp == nil {
		if outBlock.Input(out.Property) != nil {
			return nil, nil, nil, nil, fmt.Errorf("%s is an input, not an output: %w", out, ErrRoleMismatch)
		}
		names := make([]string, 0, len(outBlock.Outputs))
		for _, p := range outBlock.Outputs {
			names = append(names, p.Name)
		}
		return nil, nil, nil, nil, lookupError("output", out.Property, out.Block, names, ErrNoSuchProperty)
	}
	return inBlock, inProp, outBlock, outProp, nil
}

// Connect feeds the input pad in from the output pad out. Arguments must
// already be in (input, output) order. A fold input that is already
// connected grows a new clone pad instead of losing its source. Any other
// input loses its previous source. The connected pads then agree on a type
// according to the input's TypeFlow.
func (s *Scene) Connect(in, out Pad) error {
	inBlock, inProp, outBlock, outProp, err := s.resolve(in, out)
	if err != nil {
		slog.Error("connect failed", "in", in, "out", out, "err", err)
		return fmt.Errorf("connect %s to %s: %w", out, in, err)
	}

	target := in
	if inProp.Kind() == InputFold {
		if _, busy := s.dag[in]; busy {
			name, err := inBlock.AddMultiInput(in.Property)
			if err != nil {
				return fmt.Errorf("connect %s to %s: %w", out, in, err)
			}
			target = Pad{in.Block, name}
		}
	}
	s.dag[target] = out

	switch {
	case inProp.Flow == FlowFromSource:
		return inBlock.SetPropertyType(target.Property, outProp.Type, outProp.Extension)
	case !outProp.ShaderOutput:
		return outBlock.SetPropertyType(out.Property, inProp.Type, inProp.Extension)
	}
	return nil
}

// Restore records an edge verbatim, without fold growth or type
// propagation. Loaders use it to rebuild a persisted network.
func (s *Scene) Restore(in, out Pad) error {
	if _, _, _, _, err := s.resolve(in, out); err != nil {
		return fmt.Errorf("restore %s to %s: %w", out, in, err)
	}
	s.dag[in] = out
	return nil
}

// Disconnect removes the edge into pad when pad is a connected input,
// otherwise every edge sourced from pad. It returns the number of edges
// removed.
func (s *Scene) Disconnect(pad Pad) int {
	n := s.unlink(pad)
	if n == 0 {
		slog.Warn("disconnect: pad has no connection", "pad", pad)
	}
	return n
}

// unlink is Disconnect without the warning for an unconnected pad.
func (s *Scene) unlink(pad Pad) int {
	if _, ok := s.dag[pad]; ok {
		delete(s.dag, pad)
		return 1
	}
	n := 0
	for in, out := range s.dag {
		if out == pad {
			delete(s.dag, in)
			n++
		}
	}
	return n
}

// Parent returns the output feeding the input pad in.
func (s *Scene) Parent(in Pad) (Pad, bool) {
	out, ok := s.dag[in]
	return out, ok
}

// Children returns every input fed by out, sorted.
func (s *Scene) Children(out Pad) []Pad {
	var ins []Pad
	for in, o := range s.dag {
		if o == out {
			ins = append(ins, in)
		}
	}
	slices.SortFunc(ins, comparePads)
	return ins
}

// Connections returns every edge sorted by input pad.
func (s *Scene) Connections() []Connection {
	conns := make([]Connection, 0, len(s.dag))
	for in, out := range s.dag {
		conns = append(conns, Connection{In: in, Out: out})
	}
	slices.SortFunc(conns, func(a, b Connection) int { return comparePads(a.In, b.In) })
	return conns
}

func comparePads(a, b Pad) int {
	return cmp.Or(cmp.Compare(a.Block, b.Block), cmp.Compare(a.Property, b.Property))
}

// IsShaderOutput reports whether pad is an output flagged as a shader
// output. Such pads bound graph traversal.
func (s *Scene) IsShaderOutput(pad Pad) bool {
	b := s.blocks[pad.Block]
	if b == nil {
		return false
	}
	p := b.Output(pad.Property)
	return p != nil && p.ShaderOutput
}

// FoldSource is one member of a fold input.
type FoldSource struct {
	Pad       Pad
	Source    Pad
	Connected bool
}

// Fold describes a fan-in input: its operator and members in order.
type Fold struct {
	Operator string
	Members  []FoldSource
}

// Width is the number of connected members.
func (f Fold) Width() int {
	n := 0
	for _, m := range f.Members {
		if m.Connected {
			n++
		}
	}
	return n
}

// Fold returns the fold view of the input pad in.
func (s *Scene) Fold(in Pad) (Fold, error) {
	b, err := s.Lookup(in.Block)
	if err != nil {
		return Fold{}, err
	}
	head := b.Input(in.Property)
	if head == nil {
		return Fold{}, lookupError("input", in.Property, in.Block, b.inputNames(), ErrNoSuchProperty)
	}
	if head.Kind() != InputFold {
		return Fold{}, fmt.Errorf("%s is not a fold input", in)
	}
	members, err := b.MultiInputChildren(in.Property)
	if err != nil {
		return Fold{}, err
	}
	f := Fold{Operator: head.MultiOperator}
	for _, m := range members {
		pad := Pad{in.Block, m.Name}
		src, ok := s.dag[pad]
		f.Members = append(f.Members, FoldSource{Pad: pad, Source: src, Connected: ok})
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// UpwardBlocks walks depth-first from start through every connected
// input's parent, skipping shader-output parents. visited doubles as the
// accumulator: blocks already in it are not revisited. The newly visited
// blocks are returned in visiting order.
func (s *Scene) UpwardBlocks(start string, visited map[string]bool) []string {
	var order []string
	var walk func(name string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		b := s.blocks[name]
		if b == nil {
			return
		}
		visited[name] = true
		order = append(order, name)
		for _, in := range b.Inputs {
			parent, ok := s.dag[Pad{name, in.Name}]
			if !ok || s.IsShaderOutput(parent) {
				continue
			}
			walk(parent.Block)
		}
	}
	walk(start)
	return order
}

// FindCycle looks for a dependency cycle reachable upward from start.
// It returns a *CyclicGraphError naming the blocks of the first cycle.
func (s *Scene) FindCycle(start string) error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return false
		case gray:
			i := slices.Index(path, name)
			cycle = append(slices.Clone(path[i:]), name)
			return true
		}
		b := s.blocks[name]
		if b == nil {
			return false
		}
		color[name] = gray
		path = append(path, name)
		for _, in := range b.Inputs {
			parent, ok := s.dag[Pad{name, in.Name}]
			if !ok || s.IsShaderOutput(parent) {
				continue
			}
			if visit(parent.Block) {
				return true
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	if visit(start) {
		return &CyclicGraphError{Blocks: cycle}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Groups
// ---------------------------------------------------------------------------

// Group puts the named blocks in a new group and returns its id. A block
// already grouped moves to the new group.
func (s *Scene) Group(name string, blocks ...string) (int, error) {
	for _, b := range blocks {
		if _, err := s.Lookup(b); err != nil {
			slog.Error("group failed", "err", err)
			return 0, err
		}
	}
	id := s.nextGroup
	s.nextGroup++
	g := &Group{ID: id, Name: name}
	s.groups[id] = g
	for _, b := range blocks {
		s.ungroupBlock(b)
		g.Blocks = append(g.Blocks, b)
		s.groupOf[b] = id
	}
	return id, nil
}

// Ungroup dissolves a group. Its blocks stay in the scene.
func (s *Scene) Ungroup(id int) error {
	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("ungroup %d: %w", id, ErrNoSuchGroup)
	}
	for _, b := range g.Blocks {
		delete(s.groupOf, b)
	}
	delete(s.groups, id)
	return nil
}

// SetGroupName renames a group.
func (s *Scene) SetGroupName(id int, name string) error {
	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("rename group %d: %w", id, ErrNoSuchGroup)
	}
	g.Name = name
	return nil
}

// GroupOf returns the group id of a block.
func (s *Scene) GroupOf(block string) (int, bool) {
	id, ok := s.groupOf[block]
	return id, ok
}

// Groups returns a copy of every group ordered by id.
func (s *Scene) Groups() []Group {
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, Group{ID: g.ID, Name: g.Name, Blocks: slices.Clone(g.Blocks)})
	}
	slices.SortFunc(out, func(a, b Group) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// RestoreGroup recreates a persisted group with a fixed id.
func (s *Scene) RestoreGroup(id int, name string, blocks ...string) error {
	if _, taken := s.groups[id]; taken {
		return fmt.Errorf("restore group %d: %w", id, ErrDuplicateName)
	}
	for _, b := range blocks {
		if _, err := s.Lookup(b); err != nil {
			return fmt.Errorf("restore group %d: %w", id, err)
		}
	}
	g := &Group{ID: id, Name: name}
	s.groups[id] = g
	for _, b := range blocks {
		s.ungroupBlock(b)
		g.Blocks = append(g.Blocks, b)
		s.groupOf[b] = id
	}
	if id >= s.nextGroup {
		s.nextGroup = id + 1
	}
	return nil
}

func (s *Scene) ungroupBlock(name string) {
	id, ok := s.groupOf[name]
	if !ok {
		return
	}
	delete(s.groupOf, name)
	g := s.groups[id]
	g.Blocks = slices.DeleteFunc(g.Blocks, func(n string) bool { return n == name })
	if len(g.Blocks) == 0 {
		delete(s.groups, id)
	}
}
