package cli

import (
	"fmt"

	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/ariel-frischer/stagetrail/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var plain, asJSON bool

	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Display version information (v)",
		Long:    "Display version, commit, build date, and Go version information for stagetrail",
		Example: `  # Show version info
  stagetrail version

  # Plain output (for scripts)
  stagetrail version --plain`,
		GroupID: groupSetup,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Current()
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return printJSON(out, info)
			case plain:
				fmt.Fprintf(out, "stagetrail %s\n", info.Version)
				fmt.Fprintf(out, "commit: %s\n", info.Commit)
				fmt.Fprintf(out, "built: %s\n", info.BuildDate)
				fmt.Fprintf(out, "go: %s\n", info.Go)
				fmt.Fprintf(out, "platform: %s\n", info.Platform)
			default:
				output.PrintRule(out, "stagetrail "+info.Version)
				output.PrintField(out, "Commit", info.Commit)
				output.PrintField(out, "Built", info.BuildDate)
				output.PrintField(out, "Go", info.Go)
				output.PrintField(out, "Platform", info.Platform)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain output without formatting")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
