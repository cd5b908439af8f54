package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, fs vfs.Store) *Manager {
	t.Helper()
	base := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	return NewManager(fs,
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return base.Add(time.Duration(calls) * time.Minute)
		}),
	)
}

func TestManager_CreateLoad(t *testing.T) {
	t.Parallel()

	fs := vfs.NewMemStore()
	m := testManager(t, fs)

	s, err := m.Create("analyst", "0.3.0", "workflow.yaml")
	require.NoError(t, err)
	assert.Regexp(t, `^20261018_080100_[0-9a-f]{8}$`, s.ID)
	assert.Equal(t, s.ID, s.RootPath)
	assert.Equal(t, s.Created, s.LastActive)

	ok, err := fs.PathExists(s.ID + "/" + MetadataFile)
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := m.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "analyst", loaded.Persona)
	assert.Equal(t, "0.3.0", loaded.ManifestVersion)
	assert.Equal(t, "workflow.yaml", loaded.Manifest)
	assert.True(t, s.Created.Equal(loaded.Created))
	assert.Equal(t, s.ID, loaded.RootPath)
}

func TestManager_LoadMissing(t *testing.T) {
	t.Parallel()

	_, err := testManager(t, vfs.NewMemStore()).Load("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_SkipCountsPersist(t *testing.T) {
	t.Parallel()

	fs := vfs.NewMemStore()
	m := testManager(t, fs)
	s, err := m.Create("", "", "")
	require.NoError(t, err)

	assert.Equal(t, 0, s.SkipCount("gather"))
	assert.Equal(t, 1, s.IncrementSkip("gather"))
	assert.Equal(t, 2, s.IncrementSkip("gather"))
	require.NoError(t, m.Save(s))

	loaded, err := m.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.SkipCount("gather"))
	assert.Equal(t, 0, loaded.SkipCount("rename"))

	loaded.ResetSkips()
	assert.Equal(t, 0, loaded.SkipCount("gather"))
}

func TestSession_CountersAreIndependent(t *testing.T) {
	t.Parallel()

	a := &Session{ID: "a"}
	b := &Session{ID: "b"}
	a.IncrementSkip("gather")
	assert.Equal(t, 1, a.SkipCount("gather"))
	assert.Equal(t, 0, b.SkipCount("gather"))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.IncrementSkip("rename")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.SkipCount("rename"))
}

func TestManager_ListAndLatest(t *testing.T) {
	t.Parallel()

	fs := vfs.NewMemStore()
	n := 0
	m := NewManager(fs,
		WithClock(func() time.Time { n++; return time.Date(2026, 1, 1, 0, n, 0, 0, time.UTC) }),
		WithIDSource(func(time.Time) string { return fmt.Sprintf("s%d", n) }),
	)

	latest, err := m.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := m.Create("", "", "")
	require.NoError(t, err)
	second, err := m.Create("", "", "")
	require.NoError(t, err)
	require.NoError(t, fs.DirCreate("not-a-session"))
	require.NoError(t, fs.ArtifactWrite("stray.txt", []byte("x")))

	sessions, err := m.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)

	require.NoError(t, m.Touch(first))
	latest, err = m.Latest()
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
}

func TestManager_StoreIsScoped(t *testing.T) {
	t.Parallel()

	fs := vfs.NewMemStore()
	m := testManager(t, fs)
	s, err := m.Create("", "", "")
	require.NoError(t, err)

	store, err := m.Store(s)
	require.NoError(t, err)
	require.NoError(t, store.ArtifactWrite("search/data/search.json", []byte("{}")))

	ok, err := fs.PathExists(s.ID + "/search/data/search.json")
	require.NoError(t, err)
	assert.True(t, ok)
}
