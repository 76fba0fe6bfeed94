// Package logx provides the terminal slog handler used by the shrimp
// command: one line per record with the level coloured by severity.
package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/muesli/termenv"
)

// Handler writes records as "LEVEL message key=value ...".
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	out    *termenv.Output
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// Option configures a Handler.
type Option func(*Handler)

// WithProfile forces a colour profile instead of detecting one from w.
func WithProfile(p termenv.Profile) Option {
	return func(h *Handler) {
		h.out = termenv.NewOutput(h.w, termenv.WithProfile(p))
	}
}

// NewHandler returns a handler writing to w at or above level.
func NewHandler(w io.Writer, level slog.Leveler, opts ...Option) *Handler {
	h := &Handler{mu: &sync.Mutex{}, w: w, level: level}
	h.out = termenv.NewOutput(w)
	for _, o := range opts {
		o(h)
	}
	return h
}

// Install makes a handler on w the default logger and returns it.
func Install(w io.Writer, level slog.Leveler, opts ...Option) *slog.Logger {
	l := slog.New(NewHandler(w, level, opts...))
	slog.SetDefault(l)
	return l
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.levelString(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	prefix := strings.Join(h.groups, ".")
	nh.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(slices.Clone(h.groups), name)
	return &nh
}

func (h *Handler) levelString(l slog.Level) string {
	text := fmt.Sprintf("%-5s", l.String())
	var c termenv.Color
	switch {
	case l >= slog.LevelError:
		c = h.out.Color("1")
	case l >= slog.LevelWarn:
		c = h.out.Color("3")
	case l >= slog.LevelInfo:
		c = h.out.Color("4")
	default:
		c = h.out.Color("8")
	}
	s := h.out.String(text).Foreground(c)
	if l >= slog.LevelError {
		s = s.Bold()
	}
	return s.String()
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		v = fmt.Sprintf("%q", v)
	}
	b.WriteString(v)
}
