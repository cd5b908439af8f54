package artifact

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIndex opens a temporary SQLite index and registers cleanup.
func testIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLiteIndex(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSQLiteIndex_RecordLookup(t *testing.T) {
	t.Parallel()

	idx := testIndex(t)
	a := idx.Session("a")
	b := idx.Session("b")

	ts := time.Date(2026, 10, 18, 9, 30, 0, 123456789, time.UTC)
	require.NoError(t, a.Record(Location{Stage: "search", Path: "search/data/search.json", Timestamp: ts, Fingerprint: "fp1"}))

	loc, found, err := a.Lookup("search")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "search/data/search.json", loc.Path)
	assert.True(t, ts.Equal(loc.Timestamp))
	assert.Equal(t, "fp1", loc.Fingerprint)

	_, found, err = b.Lookup("search")
	require.NoError(t, err)
	assert.False(t, found, "sessions must not see each other's rows")

	require.NoError(t, a.Record(Location{Stage: "search", Path: "search/data/search.json", Timestamp: ts.Add(time.Second), Fingerprint: "fp2"}))
	loc, _, err = a.Lookup("search")
	require.NoError(t, err)
	assert.Equal(t, "fp2", loc.Fingerprint)

	n, err := a.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteIndex_Reset(t *testing.T) {
	t.Parallel()

	idx := testIndex(t).Session("s")
	require.NoError(t, idx.Record(Location{Stage: "old", Path: "old/data/old.json", Timestamp: time.Now()}))

	require.NoError(t, idx.Reset([]Location{
		{Stage: "search", Path: "search/data/search.json", Timestamp: time.Now()},
		{Stage: "gather", Path: "search/gather/data/gather.json", Timestamp: time.Now()},
	}))

	n, err := idx.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, found, err := idx.Lookup("old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteIndex_BacksStore(t *testing.T) {
	t.Parallel()

	db := testIndex(t)
	fs := vfs.NewMemStore()

	s := newTestStore(t, fs, prepGraph(), WithIndex(db.Session("s1")))
	write(t, s, "search", `{}`)
	res := write(t, s, "gather", `{}`)

	// A second store over the same session reuses the persisted rows.
	reopened := newTestStore(t, fs, prepGraph(), WithIndex(db.Session("s1")))
	loc, found, err := reopened.Latest("gather")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, res.Path, loc.Path)
	assert.Equal(t, res.Fingerprint, loc.Fingerprint)
}

func TestSQLiteIndex_Generation(t *testing.T) {
	t.Parallel()

	db := testIndex(t)
	a := db.Session("a")

	gen, err := a.Generation()
	require.NoError(t, err)
	assert.Empty(t, gen)

	require.NoError(t, a.SetGeneration("g1"))
	require.NoError(t, a.SetGeneration("g2"))
	gen, err = a.Generation()
	require.NoError(t, err)
	assert.Equal(t, "g2", gen)

	gen, err = db.Session("b").Generation()
	require.NoError(t, err)
	assert.Empty(t, gen)
}

func TestStore_CatchesUpWithOtherWriters(t *testing.T) {
	t.Parallel()

	db := testIndex(t)
	fs := vfs.NewMemStore()

	first := newTestStore(t, fs, prepGraph(), WithIndex(db.Session("s1")))
	write(t, first, "search", `{}`)
	write(t, first, "gather", `{"v":1}`)

	// A run on the in-memory backend writes a newer gather the SQLite rows never saw.
	later := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	other := newTestStore(t, fs, prepGraph(), WithClock(func() time.Time { return later }))
	branched := write(t, other, "gather", `{"v":2}`)
	require.True(t, branched.Branched)

	reopened := newTestStore(t, fs, prepGraph(), WithIndex(db.Session("s1")))
	loc, found, err := reopened.Latest("gather")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, branched.Path, loc.Path)

	history, err := reopened.History("gather")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, history[1].Path, loc.Path)

	loc, found, err = first.Latest("gather")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, branched.Path, loc.Path)
}

func TestMemoryIndex(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIndex()
	require.NoError(t, idx.Record(Location{Stage: "a", Path: "a/data/a.json"}))
	loc, found, err := idx.Lookup("a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a/data/a.json", loc.Path)

	require.NoError(t, idx.Reset(nil))
	n, err := idx.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, idx.SetGeneration("g1"))
	gen, err := idx.Generation()
	require.NoError(t, err)
	assert.Equal(t, "g1", gen)
}

func TestLocation_Newer(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := Location{Path: "z", Timestamp: t0}
	newer := Location{Path: "a", Timestamp: t0.Add(time.Millisecond)}
	assert.True(t, newer.newer(older))
	assert.False(t, older.newer(newer))

	tieLow := Location{Path: "search/gather/data/gather.json", Timestamp: t0}
	tieHigh := Location{Path: "search/gather_BRANCH_x/data/gather.json", Timestamp: t0}
	assert.True(t, tieHigh.newer(tieLow))
}

func TestJoinName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "_join_gather_rename", JoinName([]string{"rename", "gather"}))
	assert.Equal(t, "_join_a_b_c", JoinName([]string{"c", "a", "b"}))
}

func TestEnvelope_EncodeDecode(t *testing.T) {
	t.Parallel()

	env := &Envelope{Stage: "search", Timestamp: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), Content: SkipContent, Fingerprint: "abc123"}
	data, err := env.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parameters_used": {}`)
	assert.Contains(t, string(data), `"_parent_fingerprints": {}`)
	assert.NotContains(t, string(data), "materialized")

	back, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.True(t, back.Skipped())

	_, err = DecodeEnvelope([]byte(`{"content":{}}`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"stage":"search","content":{}}`))
	assert.ErrorContains(t, err, "missing fingerprint")
}
