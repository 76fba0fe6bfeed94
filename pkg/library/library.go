// Package library holds the predefined blocks a scene is built from.
// Blocks are XML definitions, either embedded in the binary or read from
// user directories.
package library

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/samber/lo"

	"github.com/chazu/shrimp/pkg/graph"
)

//go:embed blocks/*.xml
var defaultBlocks embed.FS

// Entry is a block template together with where it was read from.
type Entry struct {
	Block  *graph.Block
	Source string
}

// Library maps block names to templates. A later definition with the same
// name replaces an earlier one, so user directories override defaults.
type Library struct {
	entries map[string]Entry
}

// New returns an empty library.
func New() *Library {
	return &Library{entries: make(map[string]Entry)}
}

// Default returns a library holding the embedded blocks.
func Default() (*Library, error) {
	l := New()
	if err := l.LoadFS(defaultBlocks, "blocks"); err != nil {
		return nil, err
	}
	return l, nil
}

// Add registers a template.
func (l *Library) Add(b *graph.Block, source string) {
	if prev, ok := l.entries[b.Name]; ok {
		slog.Debug("block definition replaced", "block", b.Name, "was", prev.Source, "now", source)
	}
	l.entries[b.Name] = Entry{Block: b, Source: source}
}

// LoadFS reads every *.xml file under dir of fsys.
func (l *Library) LoadFS(fsys fs.FS, dir string) error {
	return l.loadFS(fsys, dir, "")
}

// LoadDir reads every *.xml file below a directory of the local file
// system. A missing directory is not an error.
func (l *Library) LoadDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Debug("block directory does not exist", "dir", dir)
		return nil
	}
	before := len(l.entries)
	if err := l.loadFS(os.DirFS(dir), ".", dir); err != nil {
		return fmt.Errorf("load blocks from %s: %w", dir, err)
	}
	slog.Info("loaded block directory", "dir", dir, "blocks", len(l.entries)-before)
	return nil
}

func (l *Library) loadFS(fsys fs.FS, dir, origin string) error {
	return fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".xml") {
			return nil
		}
		source := p
		if origin != "" {
			source = filepath.Join(origin, filepath.FromSlash(p))
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		def, err := ParseDefinition(f)
		if err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
		l.Add(def.Block(), source)
		return nil
	})
}

// Names returns every block name, sorted.
func (l *Library) Names() []string {
	names := lo.Keys(l.entries)
	slices.Sort(names)
	return names
}

// Len returns the number of templates.
func (l *Library) Len() int {
	return len(l.entries)
}

// Lookup returns the template called name. The template must not be
// modified; use Instantiate to get a block for a scene.
func (l *Library) Lookup(name string) (Entry, error) {
	if e, ok := l.entries[name]; ok {
		return e, nil
	}
	return Entry{}, &graph.LookupError{
		Kind:       "library block",
		Name:       name,
		Suggestion: graph.Suggest(name, l.Names()),
		Err:        graph.ErrNoSuchBlock,
	}
}

// Clone returns a deep copy of the template called name.
func (l *Library) Clone(name string) (*graph.Block, error) {
	e, err := l.Lookup(name)
	if err != nil {
		return nil, err
	}
	var b graph.Block
	if err := copier.CopyWithOption(&b, e.Block, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy block %q: %w", name, err)
	}
	return &b, nil
}

// Instantiate adds a copy of the template called name to s. The copy is
// renamed when the scene already uses the name.
func (l *Library) Instantiate(s *graph.Scene, name string) (*graph.Block, error) {
	b, err := l.Clone(name)
	if err != nil {
		return nil, err
	}
	return s.AddBlock(b)
}
