package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, user, project string) (*Result, error) {
	t.Helper()
	dir := t.TempDir()
	opts := LoadOptions{
		UserConfigPath:    filepath.Join(dir, "user", "config.yml"),
		ProjectConfigPath: filepath.Join(dir, "project", "config.yml"),
		WarningWriter:     &bytes.Buffer{},
	}
	if user != "" {
		writeFile(t, opts.UserConfigPath, user)
	}
	if project != "" {
		writeFile(t, opts.ProjectConfigPath, project)
	}
	return LoadWithOptions(opts)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	res, err := load(t, "", "")
	require.NoError(t, err)
	cfg := res.Config

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".stagetrail", "sessions"), cfg.SessionsDir)
	assert.Equal(t, ".stagetrail/workflow.yaml", cfg.Manifest)
	assert.Equal(t, "auto", cfg.Color)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, DefaultBranchTimeFormat, cfg.Branch.TimeFormat)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Status.MaxParallel)
	assert.Equal(t, 500, cfg.History.MaxEntries)
	assert.Equal(t, filepath.Join(cfg.SessionsDir, "index.db"), cfg.IndexPath())
	assert.Equal(t, SourceDefault, res.Sources["index.backend"])
}

func TestLoad_Layering(t *testing.T) {
	t.Parallel()

	res, err := load(t,
		"index:\n  backend: sqlite\nlog:\n  level: debug\n",
		"log:\n  level: warn\nstatus:\n  max_parallel: 8\n",
	)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", res.Config.Index.Backend)
	assert.Equal(t, "warn", res.Config.Log.Level)
	assert.Equal(t, 8, res.Config.Status.MaxParallel)

	assert.Equal(t, SourceUser, res.Sources["index.backend"])
	assert.Equal(t, SourceProject, res.Sources["log.level"])
	assert.Equal(t, SourceProject, res.Sources["status.max_parallel"])
	assert.Equal(t, SourceDefault, res.Sources["color"])
	assert.Equal(t, "warn", res.Flat()["log.level"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STAGETRAIL_INDEX_BACKEND", "sqlite")
	t.Setenv("STAGETRAIL_SESSIONS_DIR", "/srv/sessions")
	t.Setenv("STAGETRAIL_STATUS_MAX_PARALLEL", "2")

	res, err := load(t, "", "index:\n  backend: memory\n")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", res.Config.Index.Backend)
	assert.Equal(t, "/srv/sessions", res.Config.SessionsDir)
	assert.Equal(t, 2, res.Config.Status.MaxParallel)
	assert.Equal(t, SourceEnv, res.Sources["index.backend"])
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		project   string
		wantField string
		wantMsg   string
	}{
		"unknown backend": {
			project:   "index:\n  backend: postgres\n",
			wantField: "index.backend",
			wantMsg:   "must be one of: memory, sqlite",
		},
		"parallelism too low": {
			project:   "status:\n  max_parallel: 0\n",
			wantField: "status.max_parallel",
			wantMsg:   "must be at least 1",
		},
		"bad color": {
			project:   "color: sometimes\n",
			wantField: "color",
			wantMsg:   "must be one of",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := load(t, "", tt.project)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Contains(t, verr.Message, tt.wantMsg)
		})
	}
}

func TestLoad_YAMLSyntaxError(t *testing.T) {
	t.Parallel()

	_, err := load(t, "", "log:\n  level: [debug\n")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Greater(t, verr.Line, 0)
}

func TestLoad_LegacyJSONProjectConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	warnings := &bytes.Buffer{}
	writeFile(t, filepath.Join(dir, "config.json"), `{"log": {"level": "error"}}`)

	res, err := LoadWithOptions(LoadOptions{
		UserConfigPath:    filepath.Join(dir, "none.yml"),
		ProjectConfigPath: filepath.Join(dir, "config.yml"),
		WarningWriter:     warnings,
	})
	require.NoError(t, err)
	assert.Equal(t, "error", res.Config.Log.Level)
	assert.Contains(t, warnings.String(), "deprecated JSON config")
}

func TestEnvTransform(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"STAGETRAIL_SESSIONS_DIR":        "sessions_dir",
		"STAGETRAIL_INDEX_BACKEND":       "index.backend",
		"STAGETRAIL_BRANCH_TIME_FORMAT":  "branch.time_format",
		"STAGETRAIL_STATUS_MAX_PARALLEL": "status.max_parallel",
		"STAGETRAIL_COLOR":               "color",
	}
	for in, want := range tests {
		assert.Equal(t, want, envTransform(in), in)
	}
}

func TestMigrateJSONToYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := writeFile(t, filepath.Join(dir, "config.json"), `{"color": "never"}`)
	yamlPath := filepath.Join(dir, "sub", "config.yml")

	res, err := MigrateJSONToYAML(jsonPath, yamlPath, true)
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.NoFileExists(t, yamlPath)

	res, err = MigrateJSONToYAML(jsonPath, yamlPath, false)
	require.NoError(t, err)
	assert.True(t, res.Migrated)
	assert.FileExists(t, jsonPath+".bak")

	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "color: never")

	res, err = MigrateJSONToYAML(jsonPath, yamlPath, false)
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Contains(t, res.Message, "No JSON config")
}

func TestGetDefaults_MatchesSchema(t *testing.T) {
	t.Parallel()

	defaults := GetDefaults()
	assert.Len(t, defaults, len(KnownKeys))
	for _, key := range SortedKeys() {
		schema, err := GetKeySchema(key)
		require.NoError(t, err)
		assert.Equal(t, schema.Default, defaults[key])
	}
	_, err := GetKeySchema("nope")
	assert.ErrorAs(t, err, &ErrUnknownKey{})
	assert.Contains(t, GetDefaultConfigTemplate(), "max_parallel: 4")
}
