// Package session manages per-user workflow sessions. Each session owns a
// private artifact subtree and the mutable state the workflow adapter needs
// between commands, such as skip-warning counters.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/vfs"
	"github.com/google/uuid"
)

// MetadataFile is the session descriptor stored at the session root.
const MetadataFile = "session.json"

// ErrNotFound is returned when a session ID has no descriptor.
var ErrNotFound = errors.New("session not found")

// Session is one user's run through a workflow.
type Session struct {
	// ID is the unique identifier (timestamp_uuid format).
	ID string `json:"id"`
	// Persona is who the session runs as.
	Persona string `json:"persona,omitempty"`
	// ManifestVersion is the manifest version the session was created from.
	ManifestVersion string `json:"manifest_version,omitempty"`
	// Manifest is the manifest path the session was created from.
	Manifest string `json:"manifest,omitempty"`
	// Created is when the session was created.
	Created time.Time `json:"created"`
	// LastActive is updated on every artifact write.
	LastActive time.Time `json:"last_active"`
	// RootPath is the session directory relative to the sessions store.
	RootPath string `json:"-"`

	mu         sync.Mutex
	skipCounts map[string]int
}

type sessionFile struct {
	ID              string         `json:"id"`
	Persona         string         `json:"persona,omitempty"`
	ManifestVersion string         `json:"manifest_version,omitempty"`
	Manifest        string         `json:"manifest,omitempty"`
	Created         time.Time      `json:"created"`
	LastActive      time.Time      `json:"last_active"`
	SkipCounts      map[string]int `json:"skip_counts,omitempty"`
}

// SkipCount returns how many skip warnings have been issued for stageID.
func (s *Session) SkipCount(stageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipCounts[stageID]
}

// IncrementSkip records one more skip warning for stageID and returns the
// new count.
func (s *Session) IncrementSkip(stageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipCounts == nil {
		s.skipCounts = make(map[string]int)
	}
	s.skipCounts[stageID]++
	return s.skipCounts[stageID]
}

// ResetSkips clears every skip counter.
func (s *Session) ResetSkips() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipCounts = nil
}

func (s *Session) toFile() sessionFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts map[string]int
	if len(s.skipCounts) > 0 {
		counts = make(map[string]int, len(s.skipCounts))
		for k, v := range s.skipCounts {
			counts[k] = v
		}
	}
	return sessionFile{
		ID:              s.ID,
		Persona:         s.Persona,
		ManifestVersion: s.ManifestVersion,
		Manifest:        s.Manifest,
		Created:         s.Created,
		LastActive:      s.LastActive,
		SkipCounts:      counts,
	}
}

func fromFile(f sessionFile) *Session {
	return &Session{
		ID:              f.ID,
		Persona:         f.Persona,
		ManifestVersion: f.ManifestVersion,
		Manifest:        f.Manifest,
		Created:         f.Created,
		LastActive:      f.LastActive,
		RootPath:        f.ID,
		skipCounts:      f.SkipCounts,
	}
}

// Manager creates, loads and lists sessions below a sessions store.
type Manager struct {
	fs    vfs.Store
	now   func() time.Time
	newID func(time.Time) string
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the clock used for timestamps and IDs.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = clock
	}
}

// WithIDSource overrides session ID generation.
func WithIDSource(next func(time.Time) string) ManagerOption {
	return func(m *Manager) {
		m.newID = next
	}
}

// NewManager returns a manager over fs, the store holding every session.
func NewManager(fs vfs.Store, opts ...ManagerOption) *Manager {
	m := &Manager{fs: fs, now: time.Now, newID: generateID}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// generateID creates a unique session ID with a timestamp prefix:
// YYYYMMDD_HHMMSS_<8-char-uuid>.
func generateID(now time.Time) string {
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), uuid.New().String()[:8])
}

// Create starts a new session and persists its descriptor.
func (m *Manager) Create(persona, manifestVersion, manifestPath string) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:              m.newID(now),
		Persona:         persona,
		ManifestVersion: manifestVersion,
		Manifest:        manifestPath,
		Created:         now,
		LastActive:      now,
	}
	s.RootPath = s.ID
	if err := m.fs.DirCreate(s.RootPath); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	if err := m.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the session descriptor, including skip counters.
func (m *Manager) Save(s *Session) error {
	data, err := json.MarshalIndent(s.toFile(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := m.fs.ArtifactWrite(vfs.Join(s.ID, MetadataFile), append(data, '\n')); err != nil {
		return fmt.Errorf("saving session %s: %w", s.ID, err)
	}
	return nil
}

// Touch marks the session active now and saves it.
func (m *Manager) Touch(s *Session) error {
	s.LastActive = m.now().UTC()
	return m.Save(s)
}

// Load reads a session descriptor. Unknown IDs yield ErrNotFound.
func (m *Manager) Load(id string) (*Session, error) {
	data, err := m.fs.ArtifactRead(vfs.Join(id, MetadataFile))
	if err != nil {
		if vfs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", id, err)
	}
	if f.ID == "" {
		f.ID = id
	}
	return fromFile(f), nil
}

// List returns every readable session, most recently active first.
// Directories without a valid descriptor are skipped.
func (m *Manager) List() ([]*Session, error) {
	entries, err := m.fs.ChildrenList("")
	if err != nil {
		if vfs.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var sessions []*Session
	for _, e := range entries {
		if e.Kind != vfs.KindDir {
			continue
		}
		s, err := m.Load(e.Name)
		if err != nil {
			continue
		}
		sessions = append(sessions, s)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActive.After(sessions[j].LastActive)
	})
	return sessions, nil
}

// Latest returns the most recently active session, or nil if none exist.
func (m *Manager) Latest() (*Session, error) {
	sessions, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

// Store returns the artifact store rooted at the session directory.
func (m *Manager) Store(s *Session) (vfs.Store, error) {
	return vfs.Sub(m.fs, s.RootPath)
}
