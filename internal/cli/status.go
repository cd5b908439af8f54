package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/dag"
	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/ariel-frischer/stagetrail/internal/progress"
	"github.com/ariel-frischer/stagetrail/internal/workflow"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// statusView is the JSON shape of one session's status.
type statusView struct {
	Session  string           `json:"session"`
	Manifest string           `json:"manifest"`
	Status   *workflow.Status `json:"status,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var all, asJSON, compact bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where a session stands",
		Long: `Show the session's completed, stale and current stages.

The position is rebuilt from the session's artifact tree on every call:
stages with an artifact are completed, chain validation marks stages whose
recorded parent fingerprints no longer match as stale, and the current
stage is the first actionable one in manifest order.

With --all every session is resolved, up to status.max_parallel at a time.`,
		Example: `  stagetrail status
  stagetrail status --compact
  stagetrail status --all --json`,
		GroupID: groupWorkflow,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				return a.statusAll(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), asJSON)
			}

			ws, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			st, err := ws.adapter.Position(ws.Workspace)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return printJSON(out, statusView{Session: ws.session.ID, Manifest: ws.manifest, Status: &st})
			case compact:
				fmt.Fprintln(out, dag.RenderCompact(ws.adapter.Graph(), st.Position))
			default:
				printStatus(out, ws, st)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show every session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&compact, "compact", false, "One-line output")
	return cmd
}

func printStatus(out io.Writer, ws *workspace, st workflow.Status) {
	output.PrintField(out, "Session", ws.session.ID)
	output.PrintField(out, "Manifest", ws.manifest)
	current := st.CurrentStage
	if st.Complete() {
		current = "(none)"
	}
	output.PrintField(out, "Current", current)
	fmt.Fprintln(out)
	fmt.Fprint(out, dag.RenderASCII(ws.adapter.Graph(), st.Position))

	if len(st.StaleStages) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, id := range st.StaleStages {
		detail := st.Chain.Details[id]
		msg := fmt.Sprintf("%s is stale", id)
		if len(detail.StaleParents) > 0 {
			msg += fmt.Sprintf(": %s changed since it ran", strings.Join(detail.StaleParents, ", "))
		}
		output.PrintWarning(out, msg)
	}
}

func (a *app) statusAll(ctx context.Context, out, stderr io.Writer, asJSON bool) error {
	mgr, root, err := a.sessions()
	if err != nil {
		return err
	}
	sessions, err := mgr.List()
	if err != nil {
		return clierrors.Wrap(err, clierrors.Runtime)
	}

	views := make([]statusView, len(sessions))
	spin := progress.NewSpinner(stderr, progress.DetectTerminalCapabilities(),
		fmt.Sprintf("Resolving %d sessions", len(sessions)))
	spin.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Status.MaxParallel)
	for i, s := range sessions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			views[i] = statusView{Session: s.ID, Manifest: a.manifestPath(s)}
			ws, err := a.workspaceFor(gctx, mgr, root, s)
			if err != nil {
				views[i].Error = err.Error()
				return nil
			}
			st, err := ws.adapter.Position(ws.Workspace)
			if err != nil {
				views[i].Error = err.Error()
				return nil
			}
			views[i].Status = &st
			return nil
		})
	}
	err = g.Wait()
	spin.Stop()
	if err != nil {
		return clierrors.Wrap(err, clierrors.Runtime)
	}

	if asJSON {
		return printJSON(out, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(out, "No sessions. Start one with: stagetrail session new")
		return nil
	}
	dim := color.New(color.Faint).SprintFunc()
	for _, v := range views {
		if v.Error != "" {
			output.PrintBlocked(out, fmt.Sprintf("%s  %s", v.Session, v.Error))
			continue
		}
		st := v.Status
		current := st.CurrentStage
		if st.Complete() {
			current = "complete"
		}
		line := fmt.Sprintf("%-26s  %-14s  %d/%d", v.Session, current, st.Progress.Completed, st.Progress.Total)
		if n := len(st.StaleStages); n > 0 {
			line += fmt.Sprintf("  %d stale", n)
		}
		fmt.Fprintf(out, "%s  %s\n", line, dim(v.Manifest))
	}
	return nil
}
