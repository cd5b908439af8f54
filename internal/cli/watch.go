package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/dag"
	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Redraw the session's stage graph as artifacts change",
		Long: `Watch the session directory and redraw the stage graph whenever an
artifact is written, branched or removed, including by other processes.

Press 'q' or Ctrl+C to exit.`,
		GroupID: groupWorkflow,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mgr, root, err := a.sessions()
			if err != nil {
				return err
			}
			s, err := a.resolveSession(mgr)
			if err != nil {
				return err
			}
			dir, err := root.Abs(s.RootPath)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}

			render := func() ([]string, error) {
				// A fresh workspace per redraw so writes from other processes are seen.
				ws, err := a.workspaceFor(ctx, mgr, root, s)
				if err != nil {
					return nil, err
				}
				st, err := ws.adapter.Position(ws.Workspace)
				if err != nil {
					return nil, err
				}
				header := fmt.Sprintf("Session %s  (%s)", s.ID, time.Now().Format("15:04:05"))
				body := strings.TrimRight(dag.RenderASCII(ws.adapter.Graph(), st.Position), "\n")
				return append([]string{header, ""}, strings.Split(body, "\n")...), nil
			}

			w := watch.New(dir, render,
				watch.WithOutput(cmd.OutOrStdout()),
				watch.WithDebounce(debounce),
				watch.WithKeyboard(true),
			)
			if err := w.Watch(ctx); err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 150*time.Millisecond, "Quiet period before a redraw")
	return cmd
}
