package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommandsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the commands each stage handles",
		Long: `List every command trigger of the manifest and the stage it routes to,
in matching order: multi-word phrases (longest first), then single words.
A bare stage ID always routes to its own stage.`,
		GroupID: groupWorkflow,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.loadGraph(a.manifestPath(nil))
			if err != nil {
				return err
			}
			entries := newAdapter(a, g).Commands().Entries()

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "The manifest declares no commands.")
				return nil
			}
			fmt.Fprintf(out, "%-28s  %s\n", "COMMAND", "STAGE")
			for _, e := range entries {
				fmt.Fprintf(out, "%-28s  %s\n", e.Trigger, e.Stage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
