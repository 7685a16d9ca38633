package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbuild/internal/adapters/watcher"
	"go.trai.ch/kbuild/internal/core/ports"
)

func waitForEvent(t *testing.T, w *watcher.Watcher, path string) ports.WatchEvent {
	t.Helper()

	found := make(chan ports.WatchEvent, 1)
	go func() {
		for ev := range w.Events() {
			if ev.Path == path {
				found <- ev
				return
			}
		}
	}()

	select {
	case ev := <-found:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("no event for %s", path)
		return ports.WatchEvent{}
	}
}

func TestWatcher_ReportsNewFile(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := watcher.NewWatcher(nil)
	require.NoError(t, w.Start(ctx, []string{root}))
	defer func() { _ = w.Stop() }()

	path := filepath.Join(root, "saxpy.cu")
	require.NoError(t, os.WriteFile(path, []byte("__global__ void saxpy() {}\n"), 0o600))

	ev := waitForEvent(t, w, path)
	assert.Contains(t, []ports.WatchOp{ports.OpCreate, ports.OpWrite}, ev.Operation)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := watcher.NewWatcher(nil)
	require.NoError(t, w.Start(ctx, []string{root}))
	defer func() { _ = w.Stop() }()

	sub := filepath.Join(root, "ops")
	require.NoError(t, os.Mkdir(sub, 0o750))
	waitForEvent(t, w, sub)

	// Give the event loop a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "reduce.cu")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	waitForEvent(t, w, path)
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	w := watcher.NewWatcher(nil)
	err := w.Start(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err, "missing roots have nothing to watch")
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
