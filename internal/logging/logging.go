// Package logging builds the diagnostic slog logger from flags and config.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/config"
)

// Options are the logging flags given on the command line. Empty fields fall
// back to config.
type Options struct {
	Level  string
	File   string
	Format string
}

// Logger is a configured logger plus the file it may own.
type Logger struct {
	*slog.Logger
	file io.Closer
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a level name to its slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// New resolves flag -> config -> default for level, file and format, and
// builds the logger. Without a file, records go to stderr. The caller must
// Close the result.
func New(opts Options, cfg *config.Configuration, stderr io.Writer) (*Logger, error) {
	var lc config.LogConfig
	if cfg != nil {
		lc = cfg.Log
	}

	level, err := ParseLevel(firstNonEmpty(opts.Level, lc.Level))
	if err != nil {
		return nil, err
	}

	out := &Logger{}
	w := stderr
	if path := firstNonEmpty(opts.File, lc.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		w = f
		out.file = f
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch format := firstNonEmpty(opts.Format, lc.Format); format {
	case "json":
		out.Logger = slog.New(slog.NewJSONHandler(w, handlerOpts))
	case "text", "":
		out.Logger = slog.New(slog.NewTextHandler(w, handlerOpts))
	default:
		out.Close()
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return out, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
