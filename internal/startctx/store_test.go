package startctx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agenthooks/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(DefaultPath(t.TempDir()), opts...)
	s.now = func() time.Time { return t0 }
	return s
}

func sample(id string) model.StartContext {
	return model.StartContext{
		AgentID:   id,
		AgentType: "Explore",
		SessionID: "s1",
		Timestamp: t0,
		Prompt:    "find tests",
		ToolUseID: "tu_" + id,
	}
}

func TestSaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", sample("abc")))

	got, ok := s.Load("abc")
	require.True(t, ok)
	assert.Equal(t, sample("abc"), got)

	_, ok = s.Load("missing")
	assert.False(t, ok)
}

func TestSaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", sample("abc")))
	updated := sample("abc")
	updated.AgentType = "Plan"
	require.NoError(t, s.Save(ctx, "abc", updated))

	got, ok := s.Load("abc")
	require.True(t, ok)
	assert.Equal(t, "Plan", got.AgentType)
	assert.Len(t, s.All(), 1)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", sample("abc")))
	require.NoError(t, s.Save(ctx, "def", sample("def")))
	require.NoError(t, s.Delete(ctx, "abc"))

	_, ok := s.Load("abc")
	assert.False(t, ok)
	_, ok = s.Load("def")
	assert.True(t, ok)

	assert.NoError(t, s.Delete(ctx, "never-saved"))
}

func TestLoad_MissingDocument(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.Load("abc")
	assert.False(t, ok)
	assert.Empty(t, s.All())
	_, err := os.Stat(s.Path())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_CorruptDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"abc": {"agentType": `), 0o644))

	_, ok := s.Load("abc")
	assert.False(t, ok)
	assert.Empty(t, s.All())

	require.NoError(t, s.Save(context.Background(), "def", sample("def")))
	_, ok = s.Load("def")
	assert.True(t, ok)
}

func TestSave_PrunesExpired(t *testing.T) {
	s := newTestStore(t, WithTTL(time.Hour))
	ctx := context.Background()

	stale := sample("old")
	stale.Timestamp = t0.Add(-2 * time.Hour)
	require.NoError(t, s.Save(ctx, "old", stale))
	require.NoError(t, s.Save(ctx, "new", sample("new")))

	_, ok := s.Load("old")
	assert.False(t, ok)
	_, ok = s.Load("new")
	assert.True(t, ok)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t, WithTTL(0))
	ctx := context.Background()

	for i, age := range []time.Duration{0, 30 * time.Minute, 3 * time.Hour, 48 * time.Hour} {
		sc := sample(fmt.Sprint(i))
		sc.Timestamp = t0.Add(-age)
		require.NoError(t, s.Save(ctx, fmt.Sprint(i), sc))
	}

	n, err := s.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, s.All(), 2)

	n, err = s.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSave_ConcurrentWritersKeepEveryEntry(t *testing.T) {
	path := DefaultPath(t.TempDir())
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// One store per goroutine, as each hook process opens its own.
			s := New(path, WithLockTimeout(10*time.Second))
			id := fmt.Sprintf("agent-%02d", i)
			sc := sample(id)
			sc.Timestamp = time.Now()
			errs <- s.Save(ctx, id, sc)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, New(path).All(), writers)
}

func TestSave_LockTimeout(t *testing.T) {
	s := newTestStore(t, WithLockTimeout(100*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "abc", sample("abc")))

	held, err := s.lock(ctx)
	require.NoError(t, err)
	defer held.Unlock() //nolint:errcheck

	err = s.Save(ctx, "def", sample("def"))
	require.Error(t, err)
	_, ok := s.Load("def")
	assert.False(t, ok)
}

func TestSave_EmptyID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Save(context.Background(), "", sample("")))
}
