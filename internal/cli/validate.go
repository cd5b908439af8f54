package cli

import (
	"fmt"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Validate a workflow manifest",
		Long: `Validate a workflow manifest for structural correctness.

Every problem is reported at once:
- missing or duplicate stage IDs
- stages that produce nothing
- parents that are not declared
- cycles, and a manifest without any root stage
- invalid completes_with aliases, skip warnings and conditions

YAML (.yaml, .yml) and TOML (.toml) manifests are accepted.

Exit codes:
  0 - Valid manifest
  1 - Invalid manifest or unreadable file`,
		Example: `  # Validate the configured manifest
  stagetrail validate

  # Validate a specific file
  stagetrail validate workflows/prep.toml`,
		GroupID: groupSetup,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.manifestPath(nil)
			if len(args) == 1 {
				path = args[0]
			}
			g, err := a.loadGraph(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			output.PrintSuccess(out, fmt.Sprintf("%s is valid", path))
			if g.Header.Name != "" {
				output.PrintField(out, "Workflow", g.Header.Name)
			}
			if g.Header.Version != "" {
				output.PrintField(out, "Version", g.Header.Version)
			}
			output.PrintField(out, "Stages", fmt.Sprintf("%d", g.Len()))
			output.PrintField(out, "Roots", strings.Join(g.Roots(), ", "))
			return nil
		},
	}
}
