// Package workflow is the façade the command surface talks to. It combines
// the stage graph, the artifact store, chain validation and the readiness
// resolver, and applies the soft and hard transition-blocking policy.
//
// An Adapter is immutable and may be shared by any number of sessions; all
// per-session state travels in a Workspace.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ariel-frischer/stagetrail/internal/artifact"
	"github.com/ariel-frischer/stagetrail/internal/chain"
	"github.com/ariel-frischer/stagetrail/internal/dag"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
	"github.com/ariel-frischer/stagetrail/internal/session"
)

var (
	// ErrNoStageForCommand is returned when a command routes to no stage.
	ErrNoStageForCommand = errors.New("no stage for command")
	// ErrNotOptional is returned when skipping a required stage.
	ErrNotOptional = errors.New("stage is not optional")
)

// Workspace is the per-session state an Adapter operates on.
type Workspace struct {
	// Session holds the skip counters and is required.
	Session *session.Session
	Store   *artifact.Store
	// Sessions persists skip counters and activity; nil keeps them in memory.
	Sessions *session.Manager
	// Selection is the user's current selection, seen by selection_non_empty.
	Selection []string
}

// Adapter routes commands to stages and answers position and transition
// queries for a single workflow graph.
type Adapter struct {
	graph    *manifest.Graph
	commands *CommandIndex
	logger   *slog.Logger
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New builds an adapter for g and indexes its commands.
func New(g *manifest.Graph, opts ...Option) *Adapter {
	a := &Adapter{
		graph:    g,
		commands: NewCommandIndex(g),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Graph returns the workflow graph.
func (a *Adapter) Graph() *manifest.Graph { return a.graph }

// Commands returns the command index.
func (a *Adapter) Commands() *CommandIndex { return a.commands }

// Resolve returns the stage a command routes to.
func (a *Adapter) Resolve(command string) (string, error) {
	stage, ok := a.commands.Resolve(command)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoStageForCommand, command)
	}
	return stage, nil
}

// Status is a session's position plus the chain validation behind it.
type Status struct {
	dag.Position
	Chain chain.Result `json:"chain"`
}

// Position reconstructs where the session stands purely from its artifact
// tree: found stages are completed, chain validation marks stale ones, and
// the resolver picks the next actionable stage.
func (a *Adapter) Position(ws *Workspace) (Status, error) {
	completed, err := a.completed(ws)
	if err != nil {
		return Status{}, err
	}

	res, err := chain.Validate(a.graph, ws.Store)
	if err != nil {
		return Status{}, err
	}

	var done []string
	for _, id := range a.graph.Order() {
		if completed[id] {
			done = append(done, id)
		}
	}
	return Status{Position: dag.Resolve(a.graph, done, res.StaleStages), Chain: res}, nil
}

// completed maps every stage that has an artifact, directly or through its
// completes_with alias.
func (a *Adapter) completed(ws *Workspace) (map[string]bool, error) {
	found := make(map[string]bool, a.graph.Len())
	for _, id := range a.graph.Order() {
		_, ok, err := ws.Store.Latest(id)
		if err != nil {
			return nil, err
		}
		found[id] = ok
	}
	done := make(map[string]bool, len(found))
	for _, node := range a.graph.Nodes() {
		done[node.ID] = found[node.ID] || (node.CompletesWith != "" && found[node.CompletesWith])
	}
	return done, nil
}

// Write persists a stage output and marks the session active.
func (a *Adapter) Write(ws *Workspace, stageID string, content json.RawMessage, params map[string]any, materialized []string) (artifact.WriteResult, error) {
	res, err := ws.Store.Write(artifact.WriteRequest{
		Stage:        stageID,
		Content:      content,
		Parameters:   params,
		Materialized: materialized,
	})
	if err != nil {
		return artifact.WriteResult{}, err
	}
	if ws.Sessions != nil && !res.Unchanged {
		if err := ws.Sessions.Touch(ws.Session); err != nil {
			return res, err
		}
	}
	a.logger.Info("stage output recorded",
		"stage", stageID, "path", res.Path, "branched", res.Branched, "unchanged", res.Unchanged)
	return res, nil
}

// Skip records a skip sentinel for an optional stage. The sentinel is
// fingerprinted like real output, so running the stage later invalidates
// everything that consumed the sentinel.
func (a *Adapter) Skip(ws *Workspace, stageID string) (artifact.WriteResult, error) {
	node, err := a.graph.MustNode(stageID)
	if err != nil {
		return artifact.WriteResult{}, err
	}
	if !node.Optional {
		return artifact.WriteResult{}, fmt.Errorf("%w: %s", ErrNotOptional, stageID)
	}
	return a.Write(ws, stageID, artifact.SkipContent, nil, nil)
}

// DataDir returns where a stage's plugin should place side-effect files.
func (a *Adapter) DataDir(ws *Workspace, stageID string) (string, error) {
	if _, err := a.graph.MustNode(stageID); err != nil {
		return "", err
	}
	return ws.Store.DataDir(stageID)
}

// CanonicalDir returns a stage's unbranched data directory.
func (a *Adapter) CanonicalDir(ws *Workspace, stageID string) (string, error) {
	if _, err := a.graph.MustNode(stageID); err != nil {
		return "", err
	}
	return ws.Store.CanonicalDir(stageID)
}
