package artifact

import (
	"sync"
	"time"
)

// Location points at a stage's latest envelope.
type Location struct {
	Stage       string    `json:"stage"`
	Path        string    `json:"path"`
	Timestamp   time.Time `json:"timestamp"`
	Fingerprint string    `json:"fingerprint"`
}

// newer reports whether l should replace other as a stage's latest envelope.
// Equal timestamps fall back to the lexically larger path.
func (l Location) newer(other Location) bool {
	if !l.Timestamp.Equal(other.Timestamp) {
		return l.Timestamp.After(other.Timestamp)
	}
	return l.Path > other.Path
}

// Index maps stage IDs to their latest envelope. The store keeps it current
// on every write and rebuilds it from a tree scan when it is empty, when an
// entry points at a missing file, or when its generation no longer matches
// the tree's.
type Index interface {
	Lookup(stage string) (Location, bool, error)
	Record(loc Location) error
	// Reset replaces the whole index.
	Reset(locs []Location) error
	Len() (int, error)
	// Generation returns the tree generation the index last caught up with.
	Generation() (string, error)
	SetGeneration(gen string) error
}

// MemoryIndex is a process-local Index.
type MemoryIndex struct {
	mu   sync.RWMutex
	locs map[string]Location
	gen  string
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{locs: make(map[string]Location)}
}

func (m *MemoryIndex) Lookup(stage string) (Location, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locs[stage]
	return loc, ok, nil
}

func (m *MemoryIndex) Record(loc Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs[loc.Stage] = loc
	return nil
}

func (m *MemoryIndex) Reset(locs []Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs = make(map[string]Location, len(locs))
	for _, loc := range locs {
		m.locs[loc.Stage] = loc
	}
	return nil
}

func (m *MemoryIndex) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.locs), nil
}

func (m *MemoryIndex) Generation() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen, nil
}

func (m *MemoryIndex) SetGeneration(gen string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen = gen
	return nil
}
