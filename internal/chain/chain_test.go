package chain

import (
	"errors"
	"testing"

	"github.com/ariel-frischer/stagetrail/internal/fingerprint"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordMap map[string]fingerprint.Record

func (m recordMap) Record(stageID string) (fingerprint.Record, bool, error) {
	rec, ok := m[stageID]
	return rec, ok, nil
}

func st(id string, previous ...string) manifest.StageNode {
	return manifest.StageNode{ID: id, Previous: previous, Produces: []string{id}}
}

func linear() *manifest.Graph {
	return manifest.NewGraph(manifest.Header{}, []manifest.StageNode{
		st("search"), st("gather", "search"), st("harmonize", "gather"),
	})
}

func TestCheck(t *testing.T) {
	t.Parallel()

	rec := fingerprint.Record{Fingerprint: "fp-g", ParentFingerprints: map[string]string{"search": "A"}}

	tests := map[string]struct {
		current   map[string]string
		wantStale bool
		wantPars  []string
	}{
		"matching parent":       {current: map[string]string{"search": "A"}, wantStale: false},
		"changed parent":        {current: map[string]string{"search": "B"}, wantStale: true, wantPars: []string{"search"}},
		"parent never recorded": {current: map[string]string{"search": "A", "rename": "R"}, wantStale: true, wantPars: []string{"rename"}},
		"no current parents":    {current: map[string]string{}, wantStale: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := Check("gather", rec, tt.current)
			assert.Equal(t, "gather", got.StageID)
			assert.Equal(t, tt.wantStale, got.Stale)
			assert.Equal(t, tt.wantPars, got.StaleParents)
			assert.Equal(t, "fp-g", got.CurrentFingerprint)
		})
	}
}

func TestValidate_PropagationDominatesLiteralMatch(t *testing.T) {
	t.Parallel()

	records := recordMap{
		"search":    {Fingerprint: "A2"},
		"gather":    {Fingerprint: "fp-g", ParentFingerprints: map[string]string{"search": "A1"}},
		"harmonize": {Fingerprint: "fp-h", ParentFingerprints: map[string]string{"gather": "fp-g"}},
	}

	res, err := Validate(linear(), records)
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, []string{"gather", "harmonize"}, res.StaleStages)
	assert.Empty(t, res.MissingStages)
	assert.Equal(t, []string{"search"}, res.Details["gather"].StaleParents)
	assert.Equal(t, []string{"gather"}, res.Details["harmonize"].StaleParents)
	assert.True(t, res.IsStale("harmonize"))
	assert.False(t, res.IsStale("search"))
}

func TestValidate_OnlyRootMaterialized(t *testing.T) {
	t.Parallel()

	res, err := Validate(linear(), recordMap{"search": {Fingerprint: "A"}})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, []string{"gather", "harmonize"}, res.MissingStages)
	assert.Equal(t, []string{}, res.StaleStages)
}

func TestValidate_AllFresh(t *testing.T) {
	t.Parallel()

	res, err := Validate(linear(), recordMap{
		"search":    {Fingerprint: "A"},
		"gather":    {Fingerprint: "G", ParentFingerprints: map[string]string{"search": "A"}},
		"harmonize": {Fingerprint: "H", ParentFingerprints: map[string]string{"gather": "G"}},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Len(t, res.Details, 3)
}

func TestValidate_TopologicalWalkWhenManifestOrderDiffers(t *testing.T) {
	t.Parallel()

	g := manifest.NewGraph(manifest.Header{}, []manifest.StageNode{
		st("harmonize", "gather"), st("search"), st("gather", "search"),
	})
	res, err := Validate(g, recordMap{
		"search":    {Fingerprint: "A2"},
		"gather":    {Fingerprint: "G", ParentFingerprints: map[string]string{"search": "A1"}},
		"harmonize": {Fingerprint: "H", ParentFingerprints: map[string]string{"gather": "G"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gather", "harmonize"}, res.StaleStages)
}

func TestValidate_SkipSentinelReplacedByRealRun(t *testing.T) {
	t.Parallel()

	g := manifest.NewGraph(manifest.Header{}, []manifest.StageNode{
		st("search"), st("rename", "search"), st("harmonize", "search", "rename"),
	})
	sentinel := fingerprint.Compute(`{"_skipped":true}`, map[string]string{"search": "A"})
	executed := fingerprint.Compute(`{"map":{}}`, map[string]string{"search": "A"})

	res, err := Validate(g, recordMap{
		"search":    {Fingerprint: "A"},
		"rename":    {Fingerprint: executed, ParentFingerprints: map[string]string{"search": "A"}},
		"harmonize": {Fingerprint: "H", ParentFingerprints: map[string]string{"search": "A", "rename": sentinel}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"harmonize"}, res.StaleStages)
	assert.Equal(t, []string{"rename"}, res.Details["harmonize"].StaleParents)
}

func TestValidate_CompletesWithAlias(t *testing.T) {
	t.Parallel()

	quick := st("quick_gather", "search")
	quick.CompletesWith = "gather"
	g := manifest.NewGraph(manifest.Header{}, []manifest.StageNode{
		st("search"), st("gather", "search"), quick,
	})

	res, err := Validate(g, recordMap{
		"search": {Fingerprint: "A"},
		"gather": {Fingerprint: "G", ParentFingerprints: map[string]string{"search": "A"}},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.MissingStages)
}

func TestValidate_ReaderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk on fire")
	_, err := Validate(linear(), ReaderFunc(func(string) (fingerprint.Record, bool, error) {
		return fingerprint.Record{}, false, boom
	}))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `stage "search"`)
}
