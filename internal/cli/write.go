package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/artifact"
	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/fingerprint"
	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/spf13/cobra"
)

func newWriteCmd(a *app) *cobra.Command {
	var file string
	var params, materialized []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "write <stage>",
		Short: "Record a stage's output",
		Long: `Record a stage output as a JSON document.

The output is fingerprinted together with the fingerprints of the parents it
was computed from and stored below its ancestors' directories. Writing the
same output again changes nothing. A different output for an existing
non-root stage goes to a new branch directory; a root stage is overwritten
in place, which makes everything below it stale.

Run 'stagetrail check' first: write does not apply the transition policy.`,
		Example: `  stagetrail write search --file results.json
  cat dataset.json | stagetrail write gather --params limit=10
  stagetrail write harmonize --file out.json --materialized gather`,
		GroupID: groupWorkflow,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageID := args[0]
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			content, err := readContent(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			ws, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			res, err := ws.adapter.Write(ws.Workspace, stageID, content, parsed, materialized)
			if err != nil {
				return stageError(err, stageID, ws.adapter.Graph())
			}

			outcome := outcomeWritten
			if res.Unchanged {
				outcome = outcomeUnchanged
			}
			ws.history.Log("write "+stageID, stageID, outcome, res.Path)
			return printWriteResult(cmd.OutOrStdout(), ws, res, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON output file ('-' reads stdin)")
	cmd.Flags().StringArrayVarP(&params, "params", "p", nil, "Parameter used, as key=value (repeatable)")
	cmd.Flags().StringSliceVar(&materialized, "materialized", nil, "Optional parents whose output this stage consumed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func readContent(stdin io.Reader, file string) (json.RawMessage, error) {
	var data []byte
	var err error
	if file == "" || file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, clierrors.WrapWithMessage(err, clierrors.Argument, "reading stage output")
	}
	if !json.Valid(data) {
		return nil, clierrors.NewArgumentError("stage output is not valid JSON",
			"Stage outputs are JSON documents, e.g. {\"rows\": 120}")
	}
	return json.RawMessage(data), nil
}

// parseParams turns key=value pairs into a parameter map. Values that parse
// as JSON keep their type; anything else is a string.
func parseParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, clierrors.InvalidParam(kv)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		out[key] = v
	}
	return out, nil
}

func printWriteResult(out io.Writer, ws *workspace, res artifact.WriteResult, asJSON bool) error {
	if asJSON {
		return printJSON(out, res)
	}
	switch {
	case res.Unchanged:
		output.PrintSuccess(out, fmt.Sprintf("%s unchanged", res.Stage))
	case res.Branched:
		output.PrintSuccess(out, fmt.Sprintf("%s recorded on a new branch", res.Stage))
	case res.Overwrote:
		output.PrintSuccess(out, fmt.Sprintf("%s overwritten; dependent stages are now stale", res.Stage))
	default:
		output.PrintSuccess(out, fmt.Sprintf("%s recorded", res.Stage))
	}
	output.PrintField(out, "Path", res.Path)
	output.PrintField(out, "Fingerprint", fingerprint.Short(res.Fingerprint))
	if dir, err := ws.absPath(res.DataDir); err == nil {
		output.PrintField(out, "Data dir", dir)
	}
	return nil
}

func newSkipCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "skip <stage>",
		Short: "Mark an optional stage as skipped",
		Long: `Record a skip sentinel for an optional stage. The stage counts as
completed. Running it for real later makes every stage that consumed the
sentinel stale.`,
		Example: `  stagetrail skip rename`,
		GroupID: groupWorkflow,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageID := args[0]
			ws, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			res, err := ws.adapter.Skip(ws.Workspace, stageID)
			if err != nil {
				return stageError(err, stageID, ws.adapter.Graph())
			}
			ws.history.Log("skip "+stageID, stageID, outcomeSkipped, res.Path)

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, res)
			}
			output.PrintSuccess(out, fmt.Sprintf("%s skipped", stageID))
			output.PrintField(out, "Path", res.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newPathCmd(a *app) *cobra.Command {
	var canonical bool

	cmd := &cobra.Command{
		Use:   "path <stage>",
		Short: "Print the directory for a stage's side-effect files",
		Long: `Print the absolute data directory a stage's plugin should write side-effect
files to. The directory sits below the stage's latest artifact, or where
its next artifact will go when it has none yet.

With --canonical, print the stage's unbranched data directory instead, even
when newer artifacts live on branches.`,
		Example: `  cp model.bin "$(stagetrail path train)"
  stagetrail path --canonical gather`,
		GroupID: groupWorkflow,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageID := args[0]
			ws, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			lookup := ws.adapter.DataDir
			if canonical {
				lookup = ws.adapter.CanonicalDir
			}
			dir, err := lookup(ws.Workspace, stageID)
			if err != nil {
				return stageError(err, stageID, ws.adapter.Graph())
			}
			abs, err := ws.absPath(dir)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}
			fmt.Fprintln(cmd.OutOrStdout(), abs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&canonical, "canonical", false, "Print the unbranched data directory")
	return cmd
}
