package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresFiles(t *testing.T) {
	_, err := New(nil, 0, func(context.Context, string) {})
	assert.Error(t, err)
}

func TestWatcherFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "scene.lisp")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(target, []byte("(scene \"a\")"), 0o644))

	changed := make(chan string, 16)
	w, err := New([]string{target}, 20*time.Millisecond, func(_ context.Context, path string) {
		changed <- path
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watcher registers asynchronously, so keep touching the file
	// until the first change is seen.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got string
wait:
	for {
		select {
		case got = <-changed:
			break wait
		case <-tick.C:
			require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
			require.NoError(t, os.WriteFile(target, []byte("(scene \"b\")"), 0o644))
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
	abs, err := filepath.Abs(target)
	require.NoError(t, err)
	gotAbs, err := filepath.Abs(got)
	require.NoError(t, err)
	assert.Equal(t, abs, gotAbs)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "scene.xml")
	require.NoError(t, os.WriteFile(target, nil, 0o644))

	w, err := New([]string{target}, 0, func(context.Context, string) {})
	require.NoError(t, err)
	assert.Equal(t, DefaultDelay, w.delay)

	assert.True(t, w.relevant(fsnotify.Event{Name: target, Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: target, Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: target, Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, "other.xml"), Op: fsnotify.Write}))
}
