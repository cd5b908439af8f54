package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ariel-frischer/stagetrail/internal/predicate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineYAML = `
schema_version: "1"
workflow:
  name: "Data prep"
  version: "0.3.0"
  persona: analyst
stages:
  - id: search
    name: Search
    previous: null
    produces: [results]
    commands: ["search", "find datasets"]
  - id: gather
    previous: search
    produces: [dataset]
    parameters:
      limit: 10
    skip_warning:
      short: "You have not gathered any data."
      reason: "Harmonize needs a dataset."
      suggestion: "Run gather first."
  - id: rename
    previous: search
    optional: true
    produces: [mapping]
    skip_warning:
      short: "Rename skipped."
      max_warnings: 1
  - id: harmonize
    previous: [gather, rename]
    produces: [harmonized]
    instruction: "Align the columns."
    commands: harmonize
    condition:
      any:
        - selection_non_empty
        - stage_complete: gather
`

const pipelineTOML = `
schema_version = "1"

[workflow]
name = "Data prep"
version = "0.3.0"
persona = "analyst"

[[stages]]
id = "search"
name = "Search"
produces = ["results"]
commands = ["search", "find datasets"]

[[stages]]
id = "gather"
previous = "search"
produces = ["dataset"]

[stages.skip_warning]
short = "You have not gathered any data."

[[stages]]
id = "rename"
previous = "search"
optional = true
produces = ["mapping"]

[[stages]]
id = "harmonize"
previous = ["gather", "rename"]
produces = "harmonized"

[stages.condition]
not = { path_exists = "locked" }
`

func TestParseBytes_Pipeline(t *testing.T) {
	t.Parallel()

	res, err := ParseBytes([]byte(pipelineYAML))
	require.NoError(t, err)
	g := res.Graph

	assert.Equal(t, "1", g.SchemaVersion)
	assert.Equal(t, Header{Name: "Data prep", Version: "0.3.0", Persona: "analyst"}, g.Header)
	assert.Equal(t, []string{"search", "gather", "rename", "harmonize"}, g.Order())
	assert.Equal(t, []string{"search"}, g.Roots())
	assert.Equal(t, []string{"gather", "rename"}, g.Children("search"))
	assert.Empty(t, Validate(g))

	search, ok := g.Node("search")
	require.True(t, ok)
	assert.Equal(t, "Search", search.DisplayName())
	assert.True(t, search.IsRoot())
	assert.Equal(t, []string{"search", "find datasets"}, search.Commands)

	gather, _ := g.Node("gather")
	assert.Equal(t, []string{"search"}, gather.Previous)
	assert.Equal(t, "gather", gather.DisplayName())
	require.NotNil(t, gather.SkipWarning)
	assert.Equal(t, DefaultMaxWarnings, gather.SkipWarning.MaxWarnings)
	assert.Equal(t, 10, gather.Parameters["limit"])

	rename, _ := g.Node("rename")
	assert.True(t, rename.Optional)
	assert.Equal(t, 1, rename.SkipWarning.MaxWarnings)

	harmonize, _ := g.Node("harmonize")
	assert.True(t, harmonize.IsJoin())
	assert.Equal(t, []string{"harmonize"}, harmonize.Commands)
	assert.Equal(t, "Align the columns.", harmonize.Instruction)
	require.NotNil(t, harmonize.Condition)
	assert.Equal(t, predicate.Any(predicate.SelectionNonEmpty(), predicate.StageComplete("gather")), *harmonize.Condition)
}

func TestParseBytes_RecordsPositions(t *testing.T) {
	t.Parallel()

	res, err := ParseBytes([]byte(pipelineYAML))
	require.NoError(t, err)

	pos := res.Graph.Position("gather")
	assert.Greater(t, pos.Line, 0)
	assert.Greater(t, pos.Line, res.Graph.Position("search").Line)
	assert.Contains(t, res.NodeInfos, "stages[1].previous")
}

func TestParseBytes_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		yaml    string
		wantErr string
	}{
		"invalid yaml": {
			yaml:    "stages: [",
			wantErr: "parsing YAML",
		},
		"empty document": {
			yaml:    "",
			wantErr: "empty document",
		},
		"root is a list": {
			yaml:    "- a\n- b\n",
			wantErr: "expected mapping node at root",
		},
		"stages not a sequence": {
			yaml:    "stages: foo\n",
			wantErr: "expected sequence for 'stages' field",
		},
		"previous is a mapping": {
			yaml:    "stages:\n  - id: a\n    previous: {x: 1}\n",
			wantErr: "expected string or list for 'previous' field",
		},
		"bad condition": {
			yaml:    "stages:\n  - id: a\n    condition: {eval: \"rm -rf\"}\n",
			wantErr: "invalid 'condition'",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseBytes_MissingIDIsCollected(t *testing.T) {
	t.Parallel()

	res, err := ParseBytes([]byte("stages:\n  - id: a\n    produces: [x]\n  - name: nameless\n    produces: [y]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Graph.Order())

	errs := Validate(res.Graph)
	require.Len(t, errs, 1)
	var missing *MissingFieldError
	require.ErrorAs(t, errs[0], &missing)
	assert.Equal(t, "id", missing.Field)
	assert.Equal(t, 4, missing.Line)
}

func TestParseTOMLBytes_SameModel(t *testing.T) {
	t.Parallel()

	res, err := ParseTOMLBytes([]byte(pipelineTOML))
	require.NoError(t, err)
	g := res.Graph

	assert.Equal(t, Header{Name: "Data prep", Version: "0.3.0", Persona: "analyst"}, g.Header)
	assert.Equal(t, []string{"search", "gather", "rename", "harmonize"}, g.Order())
	assert.Empty(t, Validate(g))

	gather, _ := g.Node("gather")
	require.NotNil(t, gather.SkipWarning)
	assert.Equal(t, DefaultMaxWarnings, gather.SkipWarning.MaxWarnings)

	harmonize, _ := g.Node("harmonize")
	assert.Equal(t, []string{"gather", "rename"}, harmonize.Previous)
	assert.Equal(t, []string{"harmonized"}, harmonize.Produces)
	require.NotNil(t, harmonize.Condition)
	assert.Equal(t, predicate.Not(predicate.PathExists("locked")), *harmonize.Condition)
}

func TestParseFile_ChoosesFormatByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "workflow.yaml")
	tomlPath := filepath.Join(dir, "workflow.toml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(pipelineYAML), 0o644))
	require.NoError(t, os.WriteFile(tomlPath, []byte(pipelineTOML), 0o644))

	fromYAML, err := ParseFile(yamlPath)
	require.NoError(t, err)
	fromTOML, err := ParseFile(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, fromYAML.Graph.Order(), fromTOML.Graph.Order())

	_, err = ParseFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
