package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/config"
	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stagetrail configuration",
		Long: `Manage stagetrail configuration settings.

Configuration is loaded with the following priority (highest to lowest):
  1. Environment variables (STAGETRAIL_*)
  2. Project config (.stagetrail/config.yml)
  3. User config (~/.config/stagetrail/config.yml)
  4. Built-in defaults`,
		Example: `  # Show the effective configuration and where each value came from
  stagetrail config show

  # List every key with its default
  stagetrail config keys

  # Create a commented project config
  stagetrail config init`,
		GroupID: groupSetup,
	}
	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigKeysCmd(),
		newConfigInitCmd(a),
		newConfigMigrateCmd(a),
	)
	return cmd
}

// configEntry is one key of 'config show --json'.
type configEntry struct {
	Value  any                 `json:"value"`
	Source config.ConfigSource `json:"source"`
}

func newConfigShowCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flat := a.loaded.Flat()
			out := cmd.OutOrStdout()

			if asJSON {
				entries := make(map[string]configEntry, len(flat))
				for key, value := range flat {
					entries[key] = configEntry{Value: value, Source: sourceOf(a, key)}
				}
				return printJSON(out, entries)
			}

			output.PrintRule(out, "Configuration Sources")
			dim := color.New(color.Faint).SprintFunc()
			for _, key := range config.SortedKeys() {
				value, ok := flat[key]
				if !ok {
					continue
				}
				fmt.Fprintf(out, "%-22s %-28v %s\n", key+":", formatValue(value), dim("("+string(sourceOf(a, key))+")"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func sourceOf(a *app, key string) config.ConfigSource {
	if src, ok := a.loaded.Sources[key]; ok {
		return src
	}
	return config.SourceDefault
}

func formatValue(v any) string {
	if s, ok := v.(string); ok && s == "" {
		return `""`
	}
	return fmt.Sprint(v)
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every configuration key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, key := range config.SortedKeys() {
				schema, err := config.GetKeySchema(key)
				if err != nil {
					return err
				}
				line := fmt.Sprintf("%-22s %-8s default %s", key, schema.Type, formatValue(schema.Default))
				if len(schema.AllowedValues) > 0 {
					line += fmt.Sprintf("  [%s]", strings.Join(schema.AllowedValues, "|"))
				}
				fmt.Fprintln(out, line)
				fmt.Fprintf(out, "    %s\n", schema.Description)
			}
			return nil
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	var user, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file",
		Long: `Write a fully commented config file with every default.

By default the project config (.stagetrail/config.yml) is created; --user
creates the user config instead. An existing file is left unchanged unless
--force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configInitPath(a, user)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				output.PrintWarning(cmd.OutOrStdout(), fmt.Sprintf("%s already exists (use --force to overwrite)", path))
				return nil
			}

			template := config.GetDefaultConfigTemplate()
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return clierrors.WrapWithMessage(err, clierrors.Configuration, "creating config directory")
			}
			if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
				return clierrors.WrapWithMessage(err, clierrors.Configuration, "writing "+path)
			}
			output.PrintSuccess(cmd.OutOrStdout(), "Created "+path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "Create the user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func configInitPath(a *app, user bool) (string, error) {
	switch {
	case user && a.opts.userConfigPath != "":
		return a.opts.userConfigPath, nil
	case user:
		path, err := config.UserConfigPath()
		if err != nil {
			return "", clierrors.WrapWithMessage(err, clierrors.Configuration, "locating user config")
		}
		return path, nil
	case a.opts.configPath != "":
		return a.opts.configPath, nil
	default:
		return config.ProjectConfigPath(), nil
	}
}

func newConfigMigrateCmd(a *app) *cobra.Command {
	var user, project, dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Convert legacy JSON config files to YAML",
		Long: `Convert legacy config.json files to config.yml. The JSON file is kept as a
.bak backup. Without --user or --project both are migrated.`,
		Example: `  stagetrail config migrate --dry-run
  stagetrail config migrate --project`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !user && !project {
				user, project = true, true
			}
			out := cmd.OutOrStdout()

			var results []*config.MigrationResult
			if user {
				res, err := config.MigrateUserConfig(dryRun)
				if err != nil {
					return clierrors.WrapWithMessage(err, clierrors.Configuration, "migrating user config")
				}
				results = append(results, res)
			}
			if project {
				res, err := config.MigrateProjectConfig(dryRun)
				if err != nil {
					return clierrors.WrapWithMessage(err, clierrors.Configuration, "migrating project config")
				}
				results = append(results, res)
			}

			for _, res := range results {
				if res.Migrated {
					output.PrintSuccess(out, res.Message)
				} else {
					fmt.Fprintln(out, res.Message)
				}
			}
			a.logger.Debug("config migration finished", "dry_run", dryRun, "results", len(results))
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "Migrate the user config")
	cmd.Flags().BoolVar(&project, "project", false, "Migrate the project config")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing")
	return cmd
}
