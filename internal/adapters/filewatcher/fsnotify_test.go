package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

func TestFSNotifyWatcher_DefaultExtensions(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Equal(t, DefaultExtensions, watcher.extensions)
}

func TestFSNotifyWatcher_WatchDirectory(t *testing.T) {
	dir := t.TempDir()

	watcher, err := NewFSNotifyWatcher([]string{".yaml"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte("chunks: []"), 0o644)
	}()

	select {
	case event := <-events:
		assert.Equal(t, ports.FileCreated, event.Operation)
		assert.Equal(t, "extra.yaml", filepath.Base(event.Path))
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()

	watcher, err := NewFSNotifyWatcher([]string{".yaml"}, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	require.NoError(t, err)

	os.WriteFile(filepath.Join(dir, "test.json"), []byte("{}"), 0o644)

	select {
	case <-events:
		t.Error("should not receive event for .json")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFSNotifyWatcher_ClosesOnCancel(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := watcher.Watch(ctx, t.TempDir())
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestFSNotifyWatcher_MissingDirectory(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	_, err = watcher.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestTranslateOp(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want ports.FileOperation
		ok   bool
	}{
		{fsnotify.Create, ports.FileCreated, true},
		{fsnotify.Write, ports.FileModified, true},
		{fsnotify.Create | fsnotify.Write, ports.FileCreated, true},
		{fsnotify.Remove, ports.FileDeleted, true},
		{fsnotify.Rename, ports.FileDeleted, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		got, ok := translateOp(tt.op)
		assert.Equal(t, tt.ok, ok, tt.op.String())
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.op.String())
		}
	}
}

func TestFSNotifyWatcher_Stop(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	assert.NoError(t, watcher.Stop())
}
