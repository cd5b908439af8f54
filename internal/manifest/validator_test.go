package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ariel-frischer/stagetrail/internal/predicate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(id string, previous ...string) StageNode {
	return StageNode{ID: id, Previous: previous, Produces: []string{id + "_out"}}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	g := NewGraph(Header{}, []StageNode{
		stage("search"),
		stage("gather", "search"),
		stage("rename", "search"),
		stage("harmonize", "gather", "rename"),
	})
	assert.Empty(t, Validate(g))
}

func TestValidate_CollectsEveryError(t *testing.T) {
	t.Parallel()

	noOutputs := stage("b", "a")
	noOutputs.Produces = []string{" "}
	g := NewGraph(Header{}, []StageNode{
		stage("a"),
		noOutputs,
		stage("c", "ghost"),
		stage("a"),
	})

	errs := Validate(g)
	require.Len(t, errs, 3)

	var dup *DuplicateStageError
	var empty *EmptyProducesError
	var orphan *UnknownParentError
	assert.True(t, errors.As(errs[0], &dup))
	assert.Equal(t, 3, dup.SecondIndex)
	assert.True(t, errors.As(errs[1], &empty))
	assert.Equal(t, "b", empty.StageID)
	assert.True(t, errors.As(errs[2], &orphan))
	assert.Equal(t, "ghost", orphan.Parent)
}

func TestValidate_Cycles(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		stages    []StageNode
		wantStuck []string
		wantRoot  bool
	}{
		"two node cycle without root": {
			stages:    []StageNode{stage("A", "B"), stage("B", "A")},
			wantStuck: []string{"A", "B"},
			wantRoot:  false,
		},
		"cycle behind a root": {
			stages:    []StageNode{stage("root"), stage("A", "root", "B"), stage("B", "A"), stage("tail", "B")},
			wantStuck: []string{"A", "B", "tail"},
			wantRoot:  true,
		},
		"cycle alongside other errors": {
			stages: []StageNode{
				stage("A", "B"),
				stage("B", "A", "missing"),
				{ID: "C", Previous: []string{"A"}},
			},
			wantStuck: []string{"A", "B", "C"},
			wantRoot:  false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			errs := Validate(NewGraph(Header{}, tt.stages))
			var cycle *CycleError
			var found bool
			var missingRoot bool
			for _, err := range errs {
				if errors.As(err, &cycle) {
					found = true
				}
				var mr *MissingRootError
				if errors.As(err, &mr) {
					missingRoot = true
				}
			}
			require.True(t, found, "expected a cycle error in %v", errs)
			assert.Equal(t, tt.wantStuck, cycle.Stages)
			assert.Equal(t, !tt.wantRoot, missingRoot)
		})
	}
}

func TestValidate_EmptyManifest(t *testing.T) {
	t.Parallel()

	errs := Validate(NewGraph(Header{}, nil))
	require.Len(t, errs, 1)
	var missing *MissingFieldError
	require.ErrorAs(t, errs[0], &missing)
	assert.Equal(t, "stages", missing.Field)
}

func TestValidate_AliasesWarningsConditions(t *testing.T) {
	t.Parallel()

	self := stage("self", "root")
	self.CompletesWith = "self"
	dangling := stage("dangling", "root")
	dangling.CompletesWith = "nowhere"
	warned := stage("warned", "root")
	warned.SkipWarning = &SkipWarning{MaxWarnings: -1}
	cond := predicate.StageComplete("ghost")
	gated := stage("gated", "root")
	gated.Condition = &cond

	errs := Validate(NewGraph(Header{}, []StageNode{stage("root"), self, dangling, warned, gated}))
	require.Len(t, errs, 5)
	assert.Contains(t, errs[0].Error(), "completes_with itself")
	assert.ErrorIs(t, errs[1], ErrUnknownStage)
	var missing *MissingFieldError
	assert.ErrorAs(t, errs[2], &missing)
	assert.Contains(t, errs[3].Error(), "max_warnings must be >= 0")
	var invalid *InvalidConditionError
	require.ErrorAs(t, errs[4], &invalid)
	assert.Equal(t, "gated", invalid.StageID)
}

func TestGraph_TopoOrder(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		stages []StageNode
		want   []string
	}{
		"manifest order already topological": {
			stages: []StageNode{stage("a"), stage("b", "a"), stage("c", "b")},
			want:   []string{"a", "b", "c"},
		},
		"child listed before parent": {
			stages: []StageNode{stage("c", "b"), stage("a"), stage("b", "a")},
			want:   []string{"a", "b", "c"},
		},
		"ties broken by manifest index": {
			stages: []StageNode{stage("r"), stage("z", "r"), stage("m", "r"), stage("j", "z", "m")},
			want:   []string{"r", "z", "m", "j"},
		},
		"cycle members appended": {
			stages: []StageNode{stage("r"), stage("x", "y"), stage("y", "x")},
			want:   []string{"r", "x", "y"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewGraph(Header{}, tt.stages).TopoOrder())
		})
	}
}

func TestGraph_Lookups(t *testing.T) {
	t.Parallel()

	g := NewGraph(Header{}, []StageNode{
		stage("search"),
		stage("gather", "search"),
		stage("rename", "search"),
		stage("harmonize", "gather", "rename"),
	})

	assert.Equal(t, 4, g.Len())
	assert.Equal(t, 2, g.Index("rename"))
	assert.Equal(t, -1, g.Index("nope"))
	assert.ElementsMatch(t, []string{"gather", "rename", "search"}, g.Ancestors("harmonize"))
	assert.Len(t, g.Edges(), 4)

	_, err := g.MustNode("nope")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestRegistry_SharesGraph(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pipelineYAML), 0o644))

	reg := NewRegistry()
	graphs := make([]*Graph, 8)
	var wg sync.WaitGroup
	for i := range graphs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := reg.Load(path)
			assert.NoError(t, err)
			graphs[i] = g
		}(i)
	}
	wg.Wait()

	for _, g := range graphs[1:] {
		assert.Same(t, graphs[0], g)
	}

	reg.Forget(path)
	again, err := reg.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, graphs[0], again)
}

func TestRegistry_InvalidManifest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stages:\n  - id: A\n    previous: B\n    produces: [x]\n  - id: B\n    previous: A\n    produces: [y]\n"), 0o644))

	_, err := NewRegistry().Load(path)
	var invalid *InvalidManifestError
	require.ErrorAs(t, err, &invalid)
	var cycle *CycleError
	assert.ErrorAs(t, err, &cycle)
	assert.Equal(t, path, invalid.Path)
}
