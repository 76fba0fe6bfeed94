// Package config loads shrimp preferences: the target renderer, how each
// renderer compiles shaders, and where blocks and headers live.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/chazu/shrimp/pkg/codegen"
)

// ErrUnknownRenderer is returned for a renderer name with no entry.
var ErrUnknownRenderer = errors.New("unknown renderer")

// DefaultFiles are tried in order by LoadDefault. The first one that
// exists wins.
var DefaultFiles = []string{
	"shrimp.toml",
	"~/.config/shrimp/config.toml",
	"~/.shrimp.toml",
}

// Renderer describes one RenderMan compliant renderer.
type Renderer struct {
	Name string `toml:"name" yaml:"name"`
	// Code is the value of the RENDERER_<NAME> constant in generated shaders.
	Code int `toml:"code" yaml:"code"`
	// Compile is the shader compiler command line. %s is the source file,
	// %o the compiled file, %r the renderer code, %% a literal percent.
	// A word holding %i is repeated once per include path.
	Compile string `toml:"compile" yaml:"compile"`
	// Extension of compiled shaders, with the leading dot.
	Extension string `toml:"extension" yaml:"extension"`
}

// Config holds every preference.
type Config struct {
	Renderer     string     `toml:"renderer" yaml:"renderer"`
	LogLevel     string     `toml:"log_level" yaml:"log_level"`
	ShaderDir    string     `toml:"shader_dir" yaml:"shader_dir"`
	IncludePaths []string   `toml:"include_paths" yaml:"include_paths"`
	BlockPaths   []string   `toml:"block_paths" yaml:"block_paths"`
	AOVHeader    string     `toml:"aov_header" yaml:"aov_header"`
	Renderers    []Renderer `toml:"renderers" yaml:"renderers"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-" yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Renderer:   "aqsis",
		LogLevel:   "info",
		ShaderDir:  "shaders",
		BlockPaths: []string{"~/.config/shrimp/blocks"},
		AOVHeader:  codegen.DefaultAOVHeader,
		Renderers: []Renderer{
			{Name: "aqsis", Code: 1, Compile: "aqsl -I%i -o %o %s", Extension: ".slx"},
			{Name: "3delight", Code: 2, Compile: "shaderdl -I%i -o %o %s", Extension: ".sdl"},
			{Name: "pixie", Code: 3, Compile: "sdrc -I%i -o %o %s", Extension: ".sdr"},
			{Name: "prman", Code: 4, Compile: "shader -I%i -o %o %s", Extension: ".slo"},
			{Name: "air", Code: 5, Compile: "shaded -I%i -o %o %s", Extension: ".slb"},
		},
	}
}

// Load reads path over the defaults. Files ending in .yaml or .yml are
// YAML, everything else TOML. A [[renderers]] entry replaces the default
// entry of the same name and new names are appended.
func Load(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var file Config
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&file)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", expanded, err)
	}

	c := Default()
	c.merge(&file)
	c.Path = expanded
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", expanded, err)
	}
	slog.Debug("config loaded", "path", expanded, "renderer", c.Renderer)
	return c, nil
}

// LoadDefault loads the first of DefaultFiles that exists, or returns
// Default when none does.
func LoadDefault() (*Config, error) {
	for _, f := range DefaultFiles {
		p, err := homedir.Expand(f)
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Default(), nil
}

// merge copies the set fields of f over c.
func (c *Config) merge(f *Config) {
	if f.Renderer != "" {
		c.Renderer = f.Renderer
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.ShaderDir != "" {
		c.ShaderDir = f.ShaderDir
	}
	if f.AOVHeader != "" {
		c.AOVHeader = f.AOVHeader
	}
	if f.IncludePaths != nil {
		c.IncludePaths = f.IncludePaths
	}
	if f.BlockPaths != nil {
		c.BlockPaths = f.BlockPaths
	}
	for _, r := range f.Renderers {
		_, i, found := lo.FindIndexOf(c.Renderers, func(d Renderer) bool { return d.Name == r.Name })
		if !found {
			c.Renderers = append(c.Renderers, r)
			continue
		}
		if r.Code != 0 {
			c.Renderers[i].Code = r.Code
		}
		if r.Compile != "" {
			c.Renderers[i].Compile = r.Compile
		}
		if r.Extension != "" {
			c.Renderers[i].Extension = r.Extension
		}
	}
}

// Validate checks that the selected renderer exists and the log level parses.
func (c *Config) Validate() error {
	if _, err := c.Current(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, r := range c.Renderers {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("renderer with empty name")
		}
	}
	return nil
}

// Lookup returns the renderer called name.
func (c *Config) Lookup(name string) (Renderer, error) {
	r, ok := lo.Find(c.Renderers, func(r Renderer) bool { return strings.EqualFold(r.Name, name) })
	if !ok {
		known := lo.Map(c.Renderers, func(r Renderer, _ int) string { return r.Name })
		return Renderer{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownRenderer, name, strings.Join(known, ", "))
	}
	return r, nil
}

// Current returns the selected renderer.
func (c *Config) Current() (Renderer, error) {
	return c.Lookup(c.Renderer)
}

// ExpandPaths replaces a leading ~ in every path with the home directory.
func (c *Config) ExpandPaths() error {
	var err error
	if c.ShaderDir, err = homedir.Expand(c.ShaderDir); err != nil {
		return err
	}
	for _, paths := range []*[]string{&c.IncludePaths, &c.BlockPaths} {
		for i, p := range *paths {
			if (*paths)[i], err = homedir.Expand(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// AssemblerOptions returns the code generator options for the selected
// renderer. Every known renderer gets a constant.
func (c *Config) AssemblerOptions() codegen.Options {
	return codegen.Options{
		Renderers: lo.Map(c.Renderers, func(r Renderer, _ int) codegen.RendererDefine {
			return codegen.RendererDefine{Name: r.Name, Code: r.Code}
		}),
		Renderer:  c.Renderer,
		AOVHeader: c.AOVHeader,
	}
}

// Save writes c as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(text string) (slog.Level, error) {
	var l slog.Level
	if text == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(text)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", text, err)
	}
	return l, nil
}
