package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ariel-frischer/stagetrail/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = "stages:\n  - id: a\n    produces: [x]\n  - id: b\n    previous: a\n    produces: [y]\n"

func testConfig(dir, backend string) *config.Configuration {
	cfg := &config.Configuration{SessionsDir: filepath.Join(dir, "sessions")}
	cfg.Index.Backend = backend
	return cfg
}

func TestCheckManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	valid := filepath.Join(dir, "ok.yaml")
	invalid := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(validManifest), 0o644))
	require.NoError(t, os.WriteFile(invalid, []byte("stages:\n  - id: a\n    previous: ghost\n    produces: [x]\n"), 0o644))

	tests := map[string]struct {
		path        string
		wantPassed  bool
		wantMessage string
	}{
		"valid":   {path: valid, wantPassed: true, wantMessage: "(2 stages)"},
		"invalid": {path: invalid, wantMessage: "ghost"},
		"missing": {path: filepath.Join(dir, "nope.yaml"), wantMessage: "nope.yaml"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := CheckManifest(tt.path)
			assert.Equal(t, "Manifest", got.Name)
			assert.Equal(t, tt.wantPassed, got.Passed)
			assert.Contains(t, got.Message, tt.wantMessage)
		})
	}
}

func TestRunHealthChecks(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		backend string
	}{
		"memory index": {backend: "memory"},
		"sqlite index": {backend: "sqlite"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := filepath.Join(dir, "workflow.yaml")
			require.NoError(t, os.WriteFile(path, []byte(validManifest), 0o644))

			report := RunHealthChecks(context.Background(), testConfig(dir, tt.backend), path)
			require.Len(t, report.Checks, 4)
			for _, c := range report.Checks {
				assert.True(t, c.Passed, "%s: %s", c.Name, c.Message)
			}
			assert.True(t, report.Passed)

			out := FormatReport(report)
			assert.Contains(t, out, "✓ Sessions directory")
			assert.Contains(t, out, "✓ Stage index: "+tt.backend)
		})
	}
}

func TestFormatReport_Failure(t *testing.T) {
	t.Parallel()

	report := &HealthReport{Passed: true}
	report.add(CheckResult{Name: "Manifest", Message: "broken"})
	assert.False(t, report.Passed)
	assert.Equal(t, "✗ Manifest: broken\n", FormatReport(report))
}
