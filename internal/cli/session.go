package cli

import (
	"fmt"
	"path/filepath"
	"time"

	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/ariel-frischer/stagetrail/internal/session"
	"github.com/spf13/cobra"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Short:   "Create and list sessions",
		GroupID: groupSession,
	}
	cmd.AddCommand(newSessionNewCmd(a), newSessionListCmd(a))
	return cmd
}

// sessionView is the JSON shape of a session.
type sessionView struct {
	ID              string    `json:"id"`
	Persona         string    `json:"persona,omitempty"`
	Manifest        string    `json:"manifest,omitempty"`
	ManifestVersion string    `json:"manifest_version,omitempty"`
	Created         time.Time `json:"created"`
	LastActive      time.Time `json:"last_active"`
}

func viewOf(s *session.Session) sessionView {
	return sessionView{
		ID:              s.ID,
		Persona:         s.Persona,
		Manifest:        s.Manifest,
		ManifestVersion: s.ManifestVersion,
		Created:         s.Created,
		LastActive:      s.LastActive,
	}
}

func newSessionNewCmd(a *app) *cobra.Command {
	var persona string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new session for the manifest",
		Long: `Start a new session. The manifest is validated first and its path and
version are recorded, so later commands find it without --manifest.`,
		Example: `  stagetrail session new --manifest workflow.yaml --persona analyst`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.manifestPath(nil)
			g, err := a.loadGraph(path)
			if err != nil {
				return err
			}
			if persona == "" {
				persona = g.Header.Persona
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}

			mgr, _, err := a.sessions()
			if err != nil {
				return err
			}
			s, err := mgr.Create(persona, g.Header.Version, abs)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}
			a.logger.Info("session created", "session", s.ID, "manifest", abs)

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, viewOf(s))
			}
			output.PrintSuccess(out, fmt.Sprintf("Session %s created", s.ID))
			output.PrintField(out, "Manifest", abs)
			if s.Persona != "" {
				output.PrintField(out, "Persona", s.Persona)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&persona, "persona", "", "Who the session runs as (default: the manifest's persona)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, _, err := a.sessions()
			if err != nil {
				return err
			}
			sessions, err := mgr.List()
			if err != nil {
				return clierrors.Wrap(err, clierrors.Runtime)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				views := make([]sessionView, 0, len(sessions))
				for _, s := range sessions {
					views = append(views, viewOf(s))
				}
				return printJSON(out, views)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions. Start one with: stagetrail session new")
				return nil
			}
			fmt.Fprintf(out, "%-26s  %-12s  %-20s  %s\n", "ID", "PERSONA", "LAST ACTIVE", "MANIFEST")
			for _, s := range sessions {
				fmt.Fprintf(out, "%-26s  %-12s  %-20s  %s\n",
					s.ID, s.Persona, s.LastActive.Local().Format("2006-01-02 15:04:05"), s.Manifest)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
