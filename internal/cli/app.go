package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ariel-frischer/stagetrail/internal/artifact"
	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/history"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
	"github.com/ariel-frischer/stagetrail/internal/session"
	"github.com/ariel-frischer/stagetrail/internal/vfs"
	"github.com/ariel-frischer/stagetrail/internal/workflow"
)

// absPath returns the filesystem path of a session-relative path.
func (w *workspace) absPath(p string) (string, error) {
	return w.root.Abs(vfs.Join(w.session.RootPath, p))
}

// workspace bundles everything a session-scoped command needs.
type workspace struct {
	*workflow.Workspace
	adapter  *workflow.Adapter
	session  *session.Session
	manifest string
	history  *history.Writer
	// root is the sessions store; session paths are relative to it.
	root *vfs.OSStore
}

// sessionsStore opens the directory holding every session.
func (a *app) sessionsStore() (*vfs.OSStore, error) {
	fs, err := vfs.NewOSStore(a.cfg.SessionsDir)
	if err != nil {
		return nil, clierrors.WrapWithMessage(err, clierrors.Configuration,
			fmt.Sprintf("opening sessions directory %s", a.cfg.SessionsDir),
			"Check 'sessions_dir' in your config or pass --sessions-dir")
	}
	return fs, nil
}

func (a *app) sessions() (*session.Manager, *vfs.OSStore, error) {
	fs, err := a.sessionsStore()
	if err != nil {
		return nil, nil, err
	}
	return session.NewManager(fs), fs, nil
}

// manifestPath picks the manifest: --manifest, then the session's own, then config.
func (a *app) manifestPath(s *session.Session) string {
	switch {
	case a.opts.manifest != "":
		return a.opts.manifest
	case s != nil && s.Manifest != "":
		return s.Manifest
	default:
		return a.cfg.Manifest
	}
}

// loadGraph parses and validates a manifest, mapping failures to CLI errors.
func (a *app) loadGraph(path string) (*manifest.Graph, error) {
	g, err := a.registry.Load(path)
	if err == nil {
		a.logger.Debug("manifest loaded", "path", path, "stages", g.Len())
		return g, nil
	}

	var invalid *manifest.InvalidManifestError
	if errors.As(err, &invalid) {
		return nil, clierrors.InvalidManifest(path, invalid.Errs)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, clierrors.ManifestNotFound(path, err)
	}
	e := clierrors.WrapWithMessage(err, clierrors.Manifest, fmt.Sprintf("cannot read manifest %s", path),
		"Check the manifest syntax with: stagetrail validate "+path)
	e.Details = []string{err.Error()}
	return nil, e
}

// resolveSession loads the --session session or the most recently active one.
func (a *app) resolveSession(mgr *session.Manager) (*session.Session, error) {
	if a.opts.session != "" {
		s, err := mgr.Load(a.opts.session)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, clierrors.SessionNotFound(a.opts.session, err)
			}
			return nil, clierrors.Wrap(err, clierrors.Runtime)
		}
		return s, nil
	}

	s, err := mgr.Latest()
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Runtime)
	}
	if s == nil {
		return nil, clierrors.NoSessions()
	}
	a.logger.Debug("using most recent session", "session", s.ID)
	return s, nil
}

// index returns the stage index for a session according to index.backend.
func (a *app) index(ctx context.Context, sessionID string) (artifact.Index, error) {
	if a.cfg.Index.Backend != "sqlite" {
		return artifact.NewMemoryIndex(), nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sqlite == nil {
		idx, err := artifact.OpenSQLiteIndex(ctx, a.cfg.IndexPath())
		if err != nil {
			return nil, clierrors.WrapWithMessage(err, clierrors.Configuration, "opening stage index",
				"Check 'index.path', or switch back with index.backend: memory")
		}
		a.sqlite = idx
	}
	return a.sqlite.Session(sessionID), nil
}

// openWorkspace resolves the session and wires the store and adapter for it.
func (a *app) openWorkspace(ctx context.Context) (*workspace, error) {
	mgr, root, err := a.sessions()
	if err != nil {
		return nil, err
	}
	s, err := a.resolveSession(mgr)
	if err != nil {
		return nil, err
	}
	return a.workspaceFor(ctx, mgr, root, s)
}

func (a *app) workspaceFor(ctx context.Context, mgr *session.Manager, root *vfs.OSStore, s *session.Session) (*workspace, error) {
	path := a.manifestPath(s)
	g, err := a.loadGraph(path)
	if err != nil {
		return nil, err
	}
	if s.ManifestVersion != "" && g.Header.Version != "" && s.ManifestVersion != g.Header.Version {
		a.logger.Warn("manifest version differs from the session's",
			"session", s.ID, "session_version", s.ManifestVersion, "manifest_version", g.Header.Version)
	}

	fs, err := mgr.Store(s)
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Runtime)
	}
	idx, err := a.index(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	store := artifact.NewStore(fs, g,
		artifact.WithIndex(idx),
		artifact.WithBranchTimeFormat(a.cfg.Branch.TimeFormat),
		artifact.WithLogger(a.logger.With("session", s.ID)),
	)

	hw := history.NewWriter(fs, a.cfg.History.MaxEntries)
	return &workspace{
		Workspace: &workflow.Workspace{Session: s, Store: store, Sessions: mgr},
		adapter:   newAdapter(a, g),
		session:   s,
		manifest:  path,
		history:   hw,
		root:      root,
	}, nil
}

func newAdapter(a *app, g *manifest.Graph) *workflow.Adapter {
	return workflow.New(g, workflow.WithLogger(a.logger.Logger))
}

// stageError maps adapter errors about stages to CLI errors.
func stageError(err error, stageID string, g *manifest.Graph) error {
	switch {
	case errors.Is(err, manifest.ErrUnknownStage):
		return clierrors.UnknownStage(stageID, g.Order(), err)
	case errors.Is(err, workflow.ErrNotOptional):
		return clierrors.NotOptional(stageID, err)
	case errors.Is(err, workflow.ErrNoStageForCommand):
		return clierrors.NoStageForCommand(stageID, err)
	default:
		return clierrors.Wrap(err, clierrors.Runtime)
	}
}
