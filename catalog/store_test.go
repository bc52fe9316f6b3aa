package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SnapshotBeforeLoad(t *testing.T) {
	s := NewStore(EmbeddedSource{}, nil)
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestStore_ReloadEmbedded(t *testing.T) {
	var hookCalls int
	s := NewStore(EmbeddedSource{}, nil, func(snap *Snapshot, err error) {
		hookCalls++
		assert.NoError(t, err)
		assert.NotNil(t, snap)
	})

	snap, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hookCalls)

	cur, err := s.Snapshot()
	require.NoError(t, err)
	assert.Same(t, snap, cur)
}

func TestStore_FailedReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	var failures int
	s := NewStore(FileSource{Path: path}, nil, func(_ *Snapshot, err error) {
		if err != nil {
			failures++
		}
	})
	first, err := s.Reload(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version: ["), 0o644))
	_, err = s.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, 1, failures)

	cur, err := s.Snapshot()
	require.NoError(t, err)
	assert.Same(t, first, cur)
}

func TestStore_ReloadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStore(EmbeddedSource{}, nil)
	_, err := s.Reload(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_NoSource(t *testing.T) {
	snap, err := Default()
	require.NoError(t, err)

	s := NewStaticStore(snap)
	cur, err := s.Snapshot()
	require.NoError(t, err)
	assert.Same(t, snap, cur)

	_, err = s.Reload(context.Background())
	assert.Error(t, err)
}

func TestStore_ConcurrentReadsDuringReload(t *testing.T) {
	s := NewStore(EmbeddedSource{}, nil)
	_, err := s.Reload(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap, err := s.Snapshot()
				if assert.NoError(t, err) {
					_, err = snap.RulesFor("basis")
					assert.NoError(t, err)
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := s.Reload(context.Background())
		require.NoError(t, err)
	}
	wg.Wait()
}

type countingReloader struct {
	calls chan struct{}
}

func (c *countingReloader) Reload(context.Context) (*Snapshot, error) {
	c.calls <- struct{}{}
	return nil, nil
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	target := &countingReloader{calls: make(chan struct{}, 10)}
	w, err := NewWatcher(path, 20*time.Millisecond, target, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"\n"), 0o644))

	select {
	case <-target.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not trigger a reload")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	target := &countingReloader{calls: make(chan struct{}, 10)}
	w, err := NewWatcher(path, 20*time.Millisecond, target, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	select {
	case <-target.calls:
		t.Fatal("unexpected reload for unrelated file")
	case <-time.After(150 * time.Millisecond):
	}
}
