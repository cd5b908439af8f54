package cli

import (
	"fmt"

	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the session's activity log",
		Long: `Show the checks, writes and skips recorded for the session, oldest first.
The log keeps at most history.max_entries entries.`,
		GroupID: groupSession,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return clierrors.NewArgumentError(fmt.Sprintf("limit must be positive, got %d", limit))
			}
			mgr, _, err := a.sessions()
			if err != nil {
				return err
			}
			s, err := a.resolveSession(mgr)
			if err != nil {
				return err
			}
			fs, err := mgr.Store(s)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}
			h, err := history.LoadHistory(fs)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}

			entries := h.Entries
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history for this session.")
				return nil
			}
			dim := color.New(color.Faint).SprintFunc()
			for _, e := range entries {
				line := fmt.Sprintf("%s  %s  %s", dim(e.Timestamp.Local().Format("2006-01-02 15:04:05")), outcomeColor(e.Outcome), e.Command)
				if e.Detail != "" {
					line += "  " + dim(e.Detail)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last N entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func outcomeColor(outcome string) string {
	padded := fmt.Sprintf("%-14s", outcome)
	switch outcome {
	case outcomeHardBlocked:
		return color.RedString(padded)
	case outcomeSoftBlocked:
		return color.YellowString(padded)
	default:
		return color.GreenString(padded)
	}
}
