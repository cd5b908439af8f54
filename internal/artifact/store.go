package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/fingerprint"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
	"github.com/ariel-frischer/stagetrail/internal/vfs"
	"github.com/google/uuid"
)

// DefaultBranchTimeFormat formats the timestamp segment of branch directories.
const DefaultBranchTimeFormat = "20060102T150405.000Z"

// generationFile sits at the session root and changes on every write. Dot
// files are ignored by Scan.
const generationFile = ".generation"

// Store reads and writes one session's artifact tree.
type Store struct {
	fs         vfs.Store
	graph      *manifest.Graph
	index      Index
	now        func() time.Time
	suffix     func() string
	timeFormat string
	logger     *slog.Logger

	mu      sync.Mutex
	indexed bool
	gen     string
}

// Option customizes a Store during construction.
type Option func(*Store)

// WithClock overrides the clock used for envelope timestamps and branch names.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.now = clock
	}
}

// WithIndex replaces the default MemoryIndex.
func WithIndex(idx Index) Option {
	return func(s *Store) {
		s.index = idx
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithBranchTimeFormat overrides DefaultBranchTimeFormat.
func WithBranchTimeFormat(layout string) Option {
	return func(s *Store) {
		if layout != "" {
			s.timeFormat = layout
		}
	}
}

// WithSuffixSource overrides the random branch disambiguator.
func WithSuffixSource(next func() string) Option {
	return func(s *Store) {
		s.suffix = next
	}
}

// NewStore returns a store over fs, which must be rooted at the session
// directory, for stages of graph.
func NewStore(fs vfs.Store, graph *manifest.Graph, opts ...Option) *Store {
	s := &Store{
		fs:         fs,
		graph:      graph,
		index:      NewMemoryIndex(),
		now:        time.Now,
		suffix:     func() string { return uuid.NewString()[:8] },
		timeFormat: DefaultBranchTimeFormat,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FS returns the underlying store primitive.
func (s *Store) FS() vfs.Store { return s.fs }

// WriteRequest is one stage output to persist.
type WriteRequest struct {
	Stage        string
	Content      json.RawMessage
	Parameters   map[string]any
	Materialized []string
}

// WriteResult describes where an output ended up.
type WriteResult struct {
	Stage       string `json:"stage"`
	Path        string `json:"path"`
	DataDir     string `json:"data_dir"`
	Fingerprint string `json:"fingerprint"`
	// Unchanged is set when an identical output already existed; nothing was written.
	Unchanged bool `json:"unchanged,omitempty"`
	// Branched is set when the output went to a new branch directory.
	Branched bool `json:"branched,omitempty"`
	// Overwrote is set when a root stage's artifact was replaced in place.
	Overwrote bool `json:"overwrote,omitempty"`
}

// Write persists a stage output. A new path is written unconditionally; a
// root stage's existing artifact is overwritten; a non-root stage whose
// fingerprint matches its latest artifact is left alone; any other change
// goes to a fresh branch directory.
func (s *Store) Write(req WriteRequest) (WriteResult, error) {
	node, err := s.graph.MustNode(req.Stage)
	if err != nil {
		return WriteResult{}, err
	}
	if err := s.ensureIndexed(); err != nil {
		return WriteResult{}, err
	}

	content, err := fingerprint.CanonicalContent(req.Content)
	if err != nil {
		return WriteResult{}, fmt.Errorf("artifact: %s: %w", req.Stage, err)
	}

	parents, err := s.parentFingerprints(node)
	if err != nil {
		return WriteResult{}, err
	}
	fp := fingerprint.Compute(content, parents)

	p, err := s.newLayout().place(req.Stage)
	if err != nil {
		return WriteResult{}, err
	}

	ts := s.now().UTC()
	stamp := ts.Format(s.timeFormat)
	res := WriteResult{Stage: req.Stage, Fingerprint: fp}

	if !node.IsRoot() {
		latest, found, err := s.Latest(req.Stage)
		if err != nil {
			return WriteResult{}, err
		}
		if found && latest.Fingerprint == fp {
			s.logger.Debug("artifact unchanged", "stage", req.Stage, "path", latest.Path)
			res.Path = latest.Path
			res.DataDir = path.Dir(latest.Path)
			res.Unchanged = true
			return res, nil
		}
	}

	p, res.Branched, err = s.resolveJoin(p, stamp)
	if err != nil {
		return WriteResult{}, err
	}

	dir := p.dir
	file := artifactFile(dir, req.Stage)
	exists, err := s.fs.PathExists(file)
	if err != nil {
		return WriteResult{}, err
	}
	switch {
	case !exists:
	case node.IsRoot():
		res.Overwrote = true
	default:
		dir = branchDir(dir, req.Stage, stamp, s.suffix())
		file = artifactFile(dir, req.Stage)
		res.Branched = true
	}

	env := &Envelope{
		Stage:              req.Stage,
		Timestamp:          ts,
		ParametersUsed:     req.Parameters,
		Content:            json.RawMessage(content),
		Materialized:       req.Materialized,
		Fingerprint:        fp,
		ParentFingerprints: parents,
	}
	data, err := env.Encode()
	if err != nil {
		return WriteResult{}, err
	}

	gen, err := s.bumpGeneration()
	if err != nil {
		return WriteResult{}, err
	}
	if err := s.fs.ArtifactWrite(file, data); err != nil {
		return WriteResult{}, fmt.Errorf("artifact: write %s: %w", req.Stage, err)
	}
	if err := s.index.Record(Location{Stage: req.Stage, Path: file, Timestamp: ts, Fingerprint: fp}); err != nil {
		return WriteResult{}, err
	}
	if err := s.index.SetGeneration(gen); err != nil {
		return WriteResult{}, err
	}
	s.mu.Lock()
	s.gen = gen
	s.mu.Unlock()

	if res.Branched {
		s.logger.Info("artifact branched", "stage", req.Stage, "path", file, "fingerprint", fingerprint.Short(fp))
	} else {
		s.logger.Debug("artifact written", "stage", req.Stage, "path", file, "fingerprint", fingerprint.Short(fp))
	}

	res.Path = file
	res.DataDir = path.Dir(file)
	return res, nil
}

// parentFingerprints collects the current fingerprint of every materialized
// parent.
func (s *Store) parentFingerprints(node *manifest.StageNode) (map[string]string, error) {
	parents := make(map[string]string, len(node.Previous))
	for _, parent := range node.Previous {
		loc, found, err := s.Latest(parent)
		if err != nil {
			return nil, err
		}
		if found {
			parents[parent] = loc.Fingerprint
		}
	}
	return parents, nil
}

// Latest returns the location of a stage's most recent envelope. found is
// false, with a nil error, when the stage has never been materialized.
func (s *Store) Latest(stageID string) (Location, bool, error) {
	if err := s.ensureIndexed(); err != nil {
		return Location{}, false, err
	}
	loc, found, err := s.index.Lookup(stageID)
	if err != nil || !found {
		return Location{}, false, err
	}

	ok, err := s.fs.PathExists(loc.Path)
	if err != nil {
		return Location{}, false, err
	}
	if ok {
		return loc, true, nil
	}

	s.logger.Debug("index entry out of date", "stage", stageID, "path", loc.Path)
	if err := s.Rebuild(); err != nil {
		return Location{}, false, err
	}
	return s.index.Lookup(stageID)
}

// Read returns a stage's most recent envelope, or nil if there is none.
func (s *Store) Read(stageID string) (*Envelope, error) {
	loc, found, err := s.Latest(stageID)
	if err != nil || !found {
		return nil, err
	}
	data, err := s.fs.ArtifactRead(loc.Path)
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(data)
}

// Record implements chain.Reader.
func (s *Store) Record(stageID string) (fingerprint.Record, bool, error) {
	env, err := s.Read(stageID)
	if err != nil || env == nil {
		return fingerprint.Record{}, false, err
	}
	return env.Record(), true, nil
}

// DataDir returns the data directory plugins should write side-effect files
// to: the directory of the latest envelope, or where the next write would go.
func (s *Store) DataDir(stageID string) (string, error) {
	loc, found, err := s.Latest(stageID)
	if err != nil {
		return "", err
	}
	if found {
		return path.Dir(loc.Path), nil
	}
	return s.CanonicalDir(stageID)
}

// CanonicalDir returns the data directory of a stage's unbranched placement,
// whether or not anything has been written there.
func (s *Store) CanonicalDir(stageID string) (string, error) {
	p, err := s.newLayout().place(stageID)
	if err != nil {
		return "", err
	}
	return vfs.Join(p.dir, dataDirName), nil
}

// treeGeneration reads the marker every write bumps. An empty string means
// nothing has been written through a Store yet.
func (s *Store) treeGeneration() (string, error) {
	data, err := s.fs.ArtifactRead(generationFile)
	if vfs.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("artifact: read generation: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) bumpGeneration() (string, error) {
	gen := uuid.NewString()
	if err := s.fs.ArtifactWrite(generationFile, []byte(gen+"\n")); err != nil {
		return "", fmt.Errorf("artifact: write generation: %w", err)
	}
	return gen, nil
}

// ensureIndexed rebuilds the index when it is empty or when the tree was
// written by someone the index did not hear from.
func (s *Store) ensureIndexed() error {
	gen, err := s.treeGeneration()
	if err != nil {
		return err
	}
	s.mu.Lock()
	current := s.indexed && s.gen == gen
	s.mu.Unlock()
	if current {
		return nil
	}

	n, err := s.index.Len()
	if err != nil {
		return err
	}
	indexedGen, err := s.index.Generation()
	if err != nil {
		return err
	}
	if n == 0 || indexedGen != gen {
		return s.rebuild(gen)
	}
	s.mu.Lock()
	s.indexed = true
	s.gen = gen
	s.mu.Unlock()
	return nil
}

// Rebuild rescans the tree and replaces the index.
func (s *Store) Rebuild() error {
	gen, err := s.treeGeneration()
	if err != nil {
		return err
	}
	return s.rebuild(gen)
}

// rebuild scans the tree and stamps the index with gen, which must have been
// read before the scan started.
func (s *Store) rebuild(gen string) error {
	history, err := s.Scan()
	if err != nil {
		return err
	}
	latest := make([]Location, 0, len(history))
	for _, locs := range history {
		latest = append(latest, locs[len(locs)-1])
	}
	if err := s.index.Reset(latest); err != nil {
		return err
	}
	if err := s.index.SetGeneration(gen); err != nil {
		return err
	}
	s.mu.Lock()
	s.indexed = true
	s.gen = gen
	s.mu.Unlock()
	s.logger.Debug("stage index rebuilt", "stages", len(latest))
	return nil
}

// Scan walks the whole tree and returns every envelope per stage, oldest
// first. Only <stage>.json files directly inside data/ directories are
// considered; links and dot-directories are skipped.
func (s *Store) Scan() (map[string][]Location, error) {
	history := make(map[string][]Location)
	err := vfs.Walk(s.fs, "", func(p string, e vfs.Entry) error {
		if strings.HasPrefix(e.Name, ".") {
			if e.Kind == vfs.KindDir {
				return vfs.SkipDir
			}
			return nil
		}
		if e.Kind != vfs.KindFile || !strings.HasSuffix(e.Name, ".json") || path.Base(path.Dir(p)) != dataDirName {
			return nil
		}
		data, err := s.fs.ArtifactRead(p)
		if err != nil {
			return err
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			s.logger.Debug("skipping non-envelope file", "path", p, "error", err)
			return nil
		}
		if e.Name != env.Stage+".json" {
			s.logger.Debug("skipping side-effect file", "path", p, "stage", env.Stage)
			return nil
		}
		history[env.Stage] = append(history[env.Stage], Location{
			Stage: env.Stage, Path: p, Timestamp: env.Timestamp, Fingerprint: env.Fingerprint,
		})
		return nil
	})
	if err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return nil, fmt.Errorf("artifact: scan: %w", err)
	}

	for _, locs := range history {
		sort.Slice(locs, func(i, j int) bool { return locs[j].newer(locs[i]) })
	}
	return history, nil
}

// History returns every envelope location of a stage, oldest first.
func (s *Store) History(stageID string) ([]Location, error) {
	history, err := s.Scan()
	if err != nil {
		return nil, err
	}
	return history[stageID], nil
}

// Completed returns the IDs of every materialized stage in manifest order.
func (s *Store) Completed() ([]string, error) {
	var done []string
	for _, id := range s.graph.Order() {
		_, found, err := s.Latest(id)
		if err != nil {
			return nil, err
		}
		if found {
			done = append(done, id)
		}
	}
	return done, nil
}
