// Package sceneio reads and writes scenes as XML documents.
package sceneio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/shrimp/pkg/graph"
	"github.com/chazu/shrimp/pkg/library"
)

type sceneXML struct {
	XMLName xml.Name   `xml:"shrimp"`
	Name    string     `xml:"name,attr"`
	Authors string     `xml:"authors,attr,omitempty"`
	About   string     `xml:"about"`
	Network networkXML `xml:"network"`
}

type networkXML struct {
	Blocks []blockXML `xml:"block"`
	Groups []groupXML `xml:"group"`
}

type blockXML struct {
	Name        string      `xml:"name,attr"`
	Root        bool        `xml:"root,attr,omitempty"`
	X           float64     `xml:"position_x,attr"`
	Y           float64     `xml:"position_y,attr"`
	Rolled      bool        `xml:"rolled,attr,omitempty"`
	Author      string      `xml:"author,attr,omitempty"`
	Description string      `xml:"description,attr,omitempty"`
	Inputs      []inputXML  `xml:"input"`
	Outputs     []outputXML `xml:"output"`
	Code        string      `xml:"rsl_code,omitempty"`
	Include     string      `xml:"rsl_include,omitempty"`
	Usage       string      `xml:"usage,omitempty"`
}

type inputXML struct {
	library.PropertyDef
	Connection *connectionXML `xml:"connection"`
}

type outputXML struct {
	library.PropertyDef
}

type connectionXML struct {
	Parent string `xml:"parent,attr"`
	Output string `xml:"output,attr"`
}

type groupXML struct {
	ID     int      `xml:"id,attr"`
	Name   string   `xml:"name,attr,omitempty"`
	Blocks []string `xml:"block_name"`
}

// Load decodes a scene. On error no scene is returned, so a caller that
// keeps its current scene until Load succeeds never sees a partial one.
func Load(r io.Reader) (*graph.Scene, error) {
	var doc sceneXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}

	s := graph.New(doc.Name)
	s.Authors = doc.Authors
	s.About = strings.TrimSpace(doc.About)

	type edge struct{ in, out graph.Pad }
	var edges []edge
	rootSeen := false

	for _, bx := range doc.Network.Blocks {
		var b *graph.Block
		if bx.Root {
			if rootSeen {
				return nil, fmt.Errorf("decode scene: second root block %q", bx.Name)
			}
			rootSeen = true
			if err := s.RenameBlock(s.Root().Name, bx.Name); err != nil {
				return nil, fmt.Errorf("decode scene: %w", err)
			}
			b = s.Root()
			restoreRootPads(b, bx)
		} else {
			if s.Block(bx.Name) != nil {
				return nil, fmt.Errorf("decode scene: block %q: %w", bx.Name, graph.ErrDuplicateName)
			}
			nb, err := s.AddBlock(decodeBlock(bx))
			if err != nil {
				return nil, fmt.Errorf("decode scene: %w", err)
			}
			b = nb
		}
		b.Position = graph.Vec2{X: bx.X, Y: bx.Y}
		b.Rolled = bx.Rolled

		for _, in := range bx.Inputs {
			if in.Connection == nil {
				continue
			}
			edges = append(edges, edge{
				in:  graph.Pad{Block: b.Name, Property: strings.TrimSpace(in.Name)},
				out: graph.Pad{Block: in.Connection.Parent, Property: in.Connection.Output},
			})
		}
	}

	for _, e := range edges {
		if err := s.Restore(e.in, e.out); err != nil {
			return nil, fmt.Errorf("decode scene: %w", err)
		}
	}
	for _, g := range doc.Network.Groups {
		if err := s.RestoreGroup(g.ID, g.Name, g.Blocks...); err != nil {
			return nil, fmt.Errorf("decode scene: %w", err)
		}
	}
	slog.Debug("scene loaded", "scene", s.Name, "blocks", s.BlockCount(), "connections", len(edges))
	return s, nil
}

func decodeBlock(bx blockXML) *graph.Block {
	b := graph.NewBlock(strings.TrimSpace(bx.Name))
	b.Author = bx.Author
	b.Description = bx.Description
	b.Code = bx.Code
	b.Usage = bx.Usage
	b.SetIncludes(bx.Include)
	for _, in := range bx.Inputs {
		b.AddInput(in.Property(b.Name))
	}
	for _, out := range bx.Outputs {
		b.AddOutput(out.Property(b.Name))
	}
	return b
}

// restoreRootPads copies persisted pad state onto the fixed root pads.
// Unknown root pads are logged and skipped.
func restoreRootPads(root *graph.Block, bx blockXML) {
	for _, in := range bx.Inputs {
		saved := in.Property(root.Name)
		p := root.Input(saved.Name)
		if p == nil {
			slog.Warn("ignoring unknown root pad", "pad", saved.Name)
			continue
		}
		if in.Type != "" {
			p.Type = saved.Type
			p.Extension = saved.Extension
		}
		if in.Default != "" || in.Value != "" {
			p.Default = saved.Default
		}
	}
}

// LoadFile reads a scene from path.
func LoadFile(path string) (*graph.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save encodes s as indented XML.
func Save(w io.Writer, s *graph.Scene) error {
	doc := sceneXML{
		Name:    s.Name,
		Authors: s.Authors,
		About:   s.About,
	}
	for _, b := range s.Blocks() {
		doc.Network.Blocks = append(doc.Network.Blocks, encodeBlock(s, b))
	}
	for _, g := range s.Groups() {
		doc.Network.Groups = append(doc.Network.Groups, groupXML{ID: g.ID, Name: g.Name, Blocks: g.Blocks})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode scene %q: %w", s.Name, err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func encodeBlock(s *graph.Scene, b *graph.Block) blockXML {
	bx := blockXML{
		Name:        b.Name,
		Root:        b.Root,
		X:           b.Position.X,
		Y:           b.Position.Y,
		Rolled:      b.Rolled,
		Author:      b.Author,
		Description: b.Description,
		Code:        b.Code,
		Include:     strings.Join(b.Includes, " "),
		Usage:       b.Usage,
	}
	for _, p := range b.Inputs {
		in := inputXML{PropertyDef: library.PropertyDefOf(p)}
		if parent, ok := s.Parent(graph.Pad{Block: b.Name, Property: p.Name}); ok {
			in.Connection = &connectionXML{Parent: parent.Block, Output: parent.Property}
		}
		bx.Inputs = append(bx.Inputs, in)
	}
	for _, p := range b.Outputs {
		bx.Outputs = append(bx.Outputs, outputXML{PropertyDef: library.PropertyDefOf(p)})
	}
	return bx
}

// SaveFile writes s to path through a temporary file, so a failed save
// leaves an existing file untouched.
func SaveFile(path string, s *graph.Scene) error {
	var buf bytes.Buffer
	if err := Save(&buf, s); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	slog.Debug("scene saved", "path", path, "bytes", buf.Len())
	return nil
}
