package manifest

import (
	"path/filepath"
	"sync"
)

// Registry lazily loads manifests and hands out one shared, read-only Graph
// per path. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	once   sync.Once
	result *ParseResult
	err    error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Load returns the validated graph for path, parsing it on first use.
// A manifest with validation errors yields an *InvalidManifestError; the
// failure is cached like a success until Forget is called.
func (r *Registry) Load(path string) (*Graph, error) {
	res, err := r.LoadResult(path)
	if err != nil {
		return nil, err
	}
	return res.Graph, nil
}

// LoadResult is Load but also returns source positions.
func (r *Registry) LoadResult(path string) (*ParseResult, error) {
	key := registryKey(path)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &registryEntry{}
		r.entries[key] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.result, e.err = LoadFile(path)
	})
	return e.result, e.err
}

// Forget drops a cached manifest so the next Load re-reads it.
func (r *Registry) Forget(path string) {
	r.mu.Lock()
	delete(r.entries, registryKey(path))
	r.mu.Unlock()
}

// LoadFile parses and validates a manifest without caching.
func LoadFile(path string) (*ParseResult, error) {
	res, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	if errs := Validate(res.Graph); len(errs) > 0 {
		return nil, &InvalidManifestError{Path: path, Errs: errs}
	}
	return res, nil
}

func registryKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
