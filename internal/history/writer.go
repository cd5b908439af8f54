// Package history keeps a per-session activity log of CLI actions, pruned
// to a maximum number of entries.
package history

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/vfs"
	"gopkg.in/yaml.v3"
)

// FileName is the log's name at the session root.
const FileName = "history.yaml"

// HistoryEntry is one recorded action.
type HistoryEntry struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Command   string    `yaml:"command" json:"command"`
	Stage     string    `yaml:"stage,omitempty" json:"stage,omitempty"`
	Outcome   string    `yaml:"outcome" json:"outcome"`
	Detail    string    `yaml:"detail,omitempty" json:"detail,omitempty"`
}

// HistoryFile is the on-disk log.
type HistoryFile struct {
	Entries []HistoryEntry `yaml:"entries"`
}

// LoadHistory reads the log from a session store. A missing log is empty.
func LoadHistory(fs vfs.Store) (*HistoryFile, error) {
	data, err := fs.ArtifactRead(FileName)
	if err != nil {
		if vfs.IsNotFound(err) {
			return &HistoryFile{}, nil
		}
		return nil, err
	}
	var h HistoryFile
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &h, nil
}

// SaveHistory writes the log to a session store.
func SaveHistory(fs vfs.Store, h *HistoryFile) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	return fs.ArtifactWrite(FileName, data)
}

// Writer provides thread-safe history logging with automatic pruning.
type Writer struct {
	fs         vfs.Store
	maxEntries int
	warn       io.Writer
	now        func() time.Time
	mu         sync.Mutex
}

// NewWriter creates a history writer for one session store. maxEntries <= 0
// disables pruning.
func NewWriter(fs vfs.Store, maxEntries int) *Writer {
	return &Writer{fs: fs, maxEntries: maxEntries, warn: os.Stderr, now: time.Now}
}

// LogEntry appends an entry, pruning the oldest ones beyond the limit.
// Errors are non-fatal: they are written to stderr and don't fail the command.
func (w *Writer) LogEntry(entry HistoryEntry) {
	if err := w.logEntry(entry); err != nil {
		fmt.Fprintf(w.warn, "Warning: failed to log history: %v\n", err)
	}
}

func (w *Writer) logEntry(entry HistoryEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, err := LoadHistory(w.fs)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = w.now().UTC()
	}
	h.Entries = append(h.Entries, entry)

	if w.maxEntries > 0 && len(h.Entries) > w.maxEntries {
		h.Entries = h.Entries[len(h.Entries)-w.maxEntries:]
	}

	if err := SaveHistory(w.fs, h); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// Log is a convenience wrapper around LogEntry.
func (w *Writer) Log(command, stage, outcome, detail string) {
	w.LogEntry(HistoryEntry{Command: command, Stage: stage, Outcome: outcome, Detail: detail})
}
