package cli

import (
	"fmt"
	"strings"

	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/ariel-frischer/stagetrail/internal/workflow"
	"github.com/spf13/cobra"
)

// History outcomes.
const (
	outcomeAllowed     = "allowed"
	outcomeSoftBlocked = "soft-blocked"
	outcomeHardBlocked = "hard-blocked"
	outcomeWritten     = "written"
	outcomeUnchanged   = "unchanged"
	outcomeSkipped     = "skipped"
)

func newCheckCmd(a *app) *cobra.Command {
	var selection []string
	var stage string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <command...>",
		Short: "Ask whether a command may run now",
		Long: `Route a command to its stage and apply the transition policy.

A pending parent without a skip warning blocks the command until it is
completed (hard block). A parent with a skip warning only warns, and after
max_warnings warnings it no longer blocks (soft block). A stage condition
that does not hold is a hard block. Commands that route to no stage are
allowed.

Exit codes:
  0 - Allowed
  2 - Soft-blocked: a skip warning was issued
  3 - Hard-blocked
  4 - Invalid arguments`,
		Example: `  # Check a user command
  stagetrail check find datasets

  # Check a stage directly, with a current selection
  stagetrail check --stage harmonize --select col_a --select col_b`,
		GroupID: groupWorkflow,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			if command == "" && stage == "" {
				return clierrors.NewArgumentErrorWithUsage("nothing to check",
					"stagetrail check <command...> | stagetrail check --stage <id>")
			}

			ws, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			ws.Selection = selection

			var res workflow.TransitionResult
			if stage != "" {
				command = stage
				res, err = ws.adapter.CheckStage(stage, ws.Workspace)
				if err != nil {
					return stageError(err, stage, ws.adapter.Graph())
				}
			} else {
				res, err = ws.adapter.CheckTransition(command, ws.Workspace)
				if err != nil {
					return clierrors.Wrap(err, clierrors.Runtime)
				}
			}

			outcome, code := verdict(res)
			ws.history.Log("check "+command, res.Stage, outcome, res.Message)
			a.logger.Debug("transition checked", "command", command, "stage", res.Stage, "outcome", outcome)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				printVerdict(cmd, res)
			}
			if code != ExitSuccess {
				return &ExitCodeError{Code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&selection, "select", nil, "Current selection item (repeatable)")
	cmd.Flags().StringVar(&stage, "stage", "", "Check a stage ID instead of a command")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func verdict(res workflow.TransitionResult) (string, int) {
	switch {
	case res.Allowed:
		return outcomeAllowed, ExitSuccess
	case res.HardBlock:
		return outcomeHardBlocked, ExitHardBlocked
	default:
		return outcomeSoftBlocked, ExitSoftBlocked
	}
}

func printVerdict(cmd *cobra.Command, res workflow.TransitionResult) {
	out := cmd.OutOrStdout()
	switch {
	case res.Allowed && res.Stage == "":
		output.PrintSuccess(out, "Allowed: "+res.Message)
	case res.Allowed:
		output.PrintSuccess(out, fmt.Sprintf("Allowed: %s", res.Stage))
	case res.HardBlock:
		output.PrintBlocked(out, res.Text())
	default:
		output.PrintWarning(out, res.Text())
	}
}
