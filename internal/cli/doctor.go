package cli

import (
	"fmt"

	"github.com/ariel-frischer/stagetrail/internal/health"
	"github.com/spf13/cobra"
)

func newDoctorCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the environment is ready",
		Long: `Check the sessions directory, symlink support, the manifest and the
stage index backend.

Exit codes:
  0 - Every check passed
  1 - At least one check failed`,
		GroupID: groupSetup,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := health.RunHealthChecks(cmd.Context(), a.cfg, a.manifestPath(nil))

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprint(out, health.FormatReport(report))
			}
			if !report.Passed {
				return &ExitCodeError{Code: ExitFailure}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
