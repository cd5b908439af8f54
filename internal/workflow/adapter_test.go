package workflow

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/artifact"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
	"github.com/ariel-frischer/stagetrail/internal/session"
	"github.com/ariel-frischer/stagetrail/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticking(start time.Time) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func newWorkspace(t *testing.T, g *manifest.Graph) *Workspace {
	t.Helper()

	clock := ticking(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))
	mgr := session.NewManager(vfs.NewMemStore(), session.WithClock(clock))
	s, err := mgr.Create("analyst", g.Header.Version, "workflow.yaml")
	require.NoError(t, err)
	fs, err := mgr.Store(s)
	require.NoError(t, err)

	return &Workspace{
		Session:  s,
		Sessions: mgr,
		Store:    artifact.NewStore(fs, g, artifact.WithClock(clock)),
	}
}

func mustWrite(t *testing.T, a *Adapter, ws *Workspace, stage, content string) artifact.WriteResult {
	t.Helper()
	res, err := a.Write(ws, stage, json.RawMessage(content), nil, nil)
	require.NoError(t, err)
	return res
}

func TestAdapter_Position(t *testing.T) {
	t.Parallel()

	a := New(prepGraph(t))
	ws := newWorkspace(t, a.Graph())

	st, err := a.Position(ws)
	require.NoError(t, err)
	assert.Equal(t, "search", st.CurrentStage)
	assert.Empty(t, st.CompletedStages)
	assert.Empty(t, st.Chain.StaleStages)
	assert.Len(t, st.Chain.MissingStages, 5)

	mustWrite(t, a, ws, "search", `{"q":"rivers"}`)
	mustWrite(t, a, ws, "gather", `{"rows":3}`)

	st, err = a.Position(ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "gather"}, st.CompletedStages)
	assert.Equal(t, "rename", st.CurrentStage)
	assert.Empty(t, st.StaleStages)
	assert.Equal(t, 40, st.Progress.Percent())

	res := mustWrite(t, a, ws, "search", `{"q":"lakes"}`)
	assert.True(t, res.Overwrote)

	st, err = a.Position(ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"gather"}, st.StaleStages)
	assert.Equal(t, []string{"gather"}, st.Chain.StaleStages)
	assert.True(t, st.Chain.IsStale("gather"))
	assert.Equal(t, "rename", st.CurrentStage)
}

func TestAdapter_CheckTransition(t *testing.T) {
	t.Parallel()

	a := New(prepGraph(t))
	ws := newWorkspace(t, a.Graph())

	res, err := a.CheckTransition("gather data", ws)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, res.HardBlock)
	assert.Equal(t, "gather", res.Stage)
	assert.Equal(t, "search", res.BlockingStage)
	assert.Equal(t, "gather requires search to be completed first.", res.Message)

	mustWrite(t, a, ws, "search", `{"q":"rivers"}`)

	res, err = a.CheckTransition("harmonize", ws)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.False(t, res.HardBlock)
	assert.Equal(t, []string{"gather", "rename"}, res.Pending)
	assert.Equal(t, "gather", res.BlockingStage)
	assert.Equal(t, 1, res.Warning)
	assert.Equal(t, 2, res.MaxWarnings)
	assert.Equal(t, "No data gathered.", res.Message)
	assert.Empty(t, res.Reason)

	res, err = a.CheckTransition("find matches", ws)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Warning)
	assert.Equal(t, "Harmonize aligns gathered datasets.", res.Reason)
	assert.Equal(t, "Run gather data first.", res.Suggestion)
	assert.Contains(t, res.Text(), "(warning 2 of 2)")

	// Warnings exhausted, optional rename has no warning: only the condition remains.
	res, err = a.CheckTransition("harmonize", ws)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.True(t, res.HardBlock)
	assert.Empty(t, res.BlockingStage)
	assert.Contains(t, res.Message, "selection_non_empty")

	ws.Selection = []string{"col_a"}
	res, err = a.CheckTransition("harmonize", ws)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "harmonize", res.Stage)
	assert.Empty(t, res.Text())

	reloaded, err := ws.Sessions.Load(ws.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.SkipCount("gather"))
}

func TestAdapter_CheckTransition_AlwaysAllowed(t *testing.T) {
	t.Parallel()

	a := New(prepGraph(t))
	ws := newWorkspace(t, a.Graph())
	mustWrite(t, a, ws, "search", `{"q":"rivers"}`)

	tests := map[string]struct {
		command   string
		wantStage string
	}{
		"completed stage": {command: "find datasets", wantStage: "search"},
		"root stage":      {command: "search again", wantStage: "search"},
		"unrouted":        {command: "dance", wantStage: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res, err := a.CheckTransition(tt.command, ws)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.False(t, res.HardBlock)
			assert.Equal(t, tt.wantStage, res.Stage)
		})
	}
}

func TestAdapter_CompletesWith(t *testing.T) {
	t.Parallel()

	g := manifest.NewGraph(manifest.Header{}, []manifest.StageNode{
		{ID: "a", Produces: []string{"x"}},
		{ID: "b", Previous: []string{"a"}, Produces: []string{"y"}, CompletesWith: "c"},
		{ID: "c", Previous: []string{"a"}, Produces: []string{"z"}},
		{ID: "d", Previous: []string{"b"}, Produces: []string{"w"}},
	})
	require.Empty(t, manifest.Validate(g))

	a := New(g)
	ws := newWorkspace(t, g)
	mustWrite(t, a, ws, "a", `1`)
	mustWrite(t, a, ws, "c", `2`)

	st, err := a.Position(ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, st.CompletedStages)
	assert.Equal(t, "d", st.CurrentStage)
	assert.Equal(t, []string{"d"}, st.Chain.MissingStages)

	res, err := a.CheckTransition("d", ws)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAdapter_WriteTouchesSession(t *testing.T) {
	t.Parallel()

	a := New(prepGraph(t))
	ws := newWorkspace(t, a.Graph())
	created := ws.Session.LastActive

	mustWrite(t, a, ws, "search", `{"q":"rivers"}`)
	mustWrite(t, a, ws, "gather", `{"rows":3}`)
	touched := ws.Session.LastActive
	assert.True(t, touched.After(created))

	res := mustWrite(t, a, ws, "gather", `{"rows":3}`)
	assert.True(t, res.Unchanged)
	assert.Equal(t, touched, ws.Session.LastActive)
}

func TestAdapter_Skip(t *testing.T) {
	t.Parallel()

	a := New(prepGraph(t))
	ws := newWorkspace(t, a.Graph())
	mustWrite(t, a, ws, "search", `{"q":"rivers"}`)

	_, err := a.Skip(ws, "rename")
	require.NoError(t, err)
	env, err := ws.Store.Read("rename")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.True(t, env.Skipped())

	_, err = a.Skip(ws, "gather")
	assert.ErrorIs(t, err, ErrNotOptional)

	_, err = a.Skip(ws, "nope")
	assert.ErrorIs(t, err, manifest.ErrUnknownStage)
}

func TestAdapter_ResolveAndDataDir(t *testing.T) {
	t.Parallel()

	a := New(prepGraph(t))
	ws := newWorkspace(t, a.Graph())

	stage, err := a.Resolve("collect rows")
	require.NoError(t, err)
	assert.Equal(t, "gather", stage)

	_, err = a.Resolve("dance")
	assert.ErrorIs(t, err, ErrNoStageForCommand)

	dir, err := a.DataDir(ws, "gather")
	require.NoError(t, err)
	assert.Equal(t, "search/gather/data", dir)

	_, err = a.DataDir(ws, "nope")
	assert.ErrorIs(t, err, manifest.ErrUnknownStage)
}

func TestAdapter_CheckStage(t *testing.T) {
	t.Parallel()

	a := New(prepGraph(t))
	ws := newWorkspace(t, a.Graph())

	res, err := a.CheckStage("train", ws)
	require.NoError(t, err)
	assert.True(t, res.HardBlock)
	assert.Equal(t, "harmonize", res.BlockingStage)

	_, err = a.CheckStage("nope", ws)
	assert.ErrorIs(t, err, manifest.ErrUnknownStage)
}
