package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ariel-frischer/stagetrail/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		"empty is info": {in: "", want: slog.LevelInfo},
		"debug":         {in: "debug", want: slog.LevelDebug},
		"case blind":    {in: "WARN", want: slog.LevelWarn},
		"error":         {in: "error", want: slog.LevelError},
		"unknown":       {in: "trace", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_FlagBeatsConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Configuration{Log: config.LogConfig{Level: "error", Format: "text"}}
	var buf bytes.Buffer

	l, err := New(Options{Level: "debug", Format: "json"}, cfg, &buf)
	require.NoError(t, err)
	defer l.Close()

	l.Debug("index rebuilt", "stage", "gather")
	assert.Contains(t, buf.String(), `"msg":"index rebuilt"`)
	assert.Contains(t, buf.String(), `"stage":"gather"`)
}

func TestNew_ConfigLevelFilters(t *testing.T) {
	t.Parallel()

	cfg := &config.Configuration{Log: config.LogConfig{Level: "warn"}}
	var buf bytes.Buffer

	l, err := New(Options{}, cfg, &buf)
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNew_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "stagetrail.log")
	var stderr bytes.Buffer

	l, err := New(Options{File: path}, nil, &stderr)
	require.NoError(t, err)
	l.Info("artifact branched")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "artifact branched")
	assert.Empty(t, stderr.String())
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "loud"}, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid log level")

	_, err = New(Options{Format: "xml"}, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid log format")
}
