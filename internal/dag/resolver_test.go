package dag

import (
	"testing"

	"github.com/ariel-frischer/stagetrail/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph() *manifest.Graph {
	st := func(id string, previous ...string) manifest.StageNode {
		return manifest.StageNode{ID: id, Previous: previous, Produces: []string{id}}
	}
	return manifest.NewGraph(manifest.Header{Name: "prep"}, []manifest.StageNode{
		st("search"),
		st("gather", "search"),
		st("rename", "search"),
		st("harmonize", "gather", "rename"),
		st("train", "harmonize"),
	})
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	got := Readiness(testGraph(), []string{"search", "rename"})
	require.Len(t, got, 5)

	assert.Equal(t, NodeReadiness{StageID: "search", Completed: true}, got[0])
	assert.Equal(t, NodeReadiness{StageID: "gather", Ready: true}, got[1])
	assert.Equal(t, NodeReadiness{StageID: "rename", Completed: true}, got[2])
	assert.Equal(t, NodeReadiness{StageID: "harmonize", PendingParents: []string{"gather"}}, got[3])
	assert.Equal(t, NodeReadiness{StageID: "train", PendingParents: []string{"harmonize"}}, got[4])
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		completed     []string
		stale         []string
		wantCurrent   string
		wantCompleted []string
		wantProgress  Progress
	}{
		"fresh session starts at root": {
			wantCurrent:   "search",
			wantCompleted: []string{},
			wantProgress:  Progress{Completed: 0, Total: 5},
		},
		"first ready stage in manifest order": {
			completed:     []string{"search"},
			wantCurrent:   "gather",
			wantCompleted: []string{"search"},
			wantProgress:  Progress{Completed: 1, Total: 5},
		},
		"completed filtered to manifest order": {
			completed:     []string{"gather", "search"},
			wantCurrent:   "rename",
			wantCompleted: []string{"search", "gather"},
			wantProgress:  Progress{Completed: 2, Total: 5},
		},
		"stale stage is skipped as current": {
			completed:     []string{"search"},
			stale:         []string{"gather"},
			wantCurrent:   "rename",
			wantCompleted: []string{"search"},
			wantProgress:  Progress{Completed: 1, Total: 5},
		},
		"all complete": {
			completed:     []string{"search", "gather", "rename", "harmonize", "train"},
			wantCurrent:   "",
			wantCompleted: []string{"search", "gather", "rename", "harmonize", "train"},
			wantProgress:  Progress{Completed: 5, Total: 5},
		},
		"no actionable stage left": {
			completed:     []string{"search", "gather", "rename"},
			stale:         []string{"harmonize"},
			wantCurrent:   "",
			wantCompleted: []string{"search", "gather", "rename"},
			wantProgress:  Progress{Completed: 3, Total: 5},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pos := Resolve(testGraph(), tt.completed, tt.stale)
			assert.Equal(t, tt.wantCurrent, pos.CurrentStage)
			assert.Equal(t, tt.wantCompleted, pos.CompletedStages)
			assert.Equal(t, tt.wantProgress, pos.Progress)
			assert.Equal(t, tt.wantCurrent == "", pos.Complete())
		})
	}
}

func TestProgress_Percent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 40, Progress{Completed: 2, Total: 5}.Percent())
	assert.Equal(t, 100, Progress{}.Percent())
}

func TestRenderASCII(t *testing.T) {
	t.Parallel()

	g := testGraph()
	out := RenderASCII(g, Resolve(g, []string{"search", "gather"}, []string{"gather"}))

	assert.Contains(t, out, "Workflow: prep")
	assert.Contains(t, out, "Stages: 5  |  Completed: 2 (40%)  |  Stale: 1")
	assert.Contains(t, out, "[x] search\n")
	assert.Contains(t, out, "[!] gather <-- search\n")
	assert.Contains(t, out, "[>] rename <-- search\n")
	assert.Contains(t, out, "[ ] harmonize <-- gather, rename\n")
	assert.Contains(t, out, "Legend:")

	empty := manifest.NewGraph(manifest.Header{}, nil)
	assert.Equal(t, "Workflow has no stages to visualize.", RenderASCII(empty, Position{}))
}

func TestRenderCompact(t *testing.T) {
	t.Parallel()

	g := testGraph()
	assert.Equal(t, "search -> gather* -> rename -> harmonize -> train",
		RenderCompact(g, Resolve(g, []string{"search"}, nil)))
	assert.Equal(t, "Empty workflow", RenderCompact(manifest.NewGraph(manifest.Header{}, nil), Position{}))
}
