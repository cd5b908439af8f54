// Package cli implements the stagetrail command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/artifact"
	"github.com/ariel-frischer/stagetrail/internal/config"
	clierrors "github.com/ariel-frischer/stagetrail/internal/errors"
	"github.com/ariel-frischer/stagetrail/internal/lifecycle"
	"github.com/ariel-frischer/stagetrail/internal/logging"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
	"github.com/ariel-frischer/stagetrail/internal/output"
	"github.com/spf13/cobra"
)

// Command groups shown in help output.
const (
	groupWorkflow = "workflow"
	groupSession  = "session"
	groupSetup    = "setup"
)

// rootOptions are the persistent flags.
type rootOptions struct {
	configPath     string
	userConfigPath string
	manifest       string
	sessionsDir    string
	session        string
	logLevel       string
	logFile        string
	logFormat      string
	color          string
}

// app is the state shared by every command of one invocation.
type app struct {
	opts     rootOptions
	cfg      *config.Configuration
	loaded   *config.Result
	logger   *logging.Logger
	registry *manifest.Registry
	stderr   io.Writer

	mu     sync.Mutex
	sqlite *artifact.SQLiteIndex
}

func newApp() *app {
	return &app{registry: manifest.NewRegistry(), stderr: os.Stderr}
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stagetrail",
		Short: "Track staged, artifact-producing workflows",
		Long: `stagetrail drives multi-stage workflows declared in a manifest.

Each session records stage outputs in a content-addressed directory tree.
Where a session stands (completed, stale and next stages) is derived from
that tree alone, and every command is checked against the stage graph
before it runs.`,
		Example: `  # Check a manifest and start a session
  stagetrail validate workflow.yaml
  stagetrail session new --manifest workflow.yaml

  # May I run this command now?
  stagetrail check find datasets

  # Record a stage output and see where the session stands
  stagetrail write search --file results.json
  stagetrail status`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "Project config file (default .stagetrail/config.yml)")
	f.StringVar(&a.opts.userConfigPath, "user-config", "", "User config file (default XDG config dir)")
	f.StringVarP(&a.opts.manifest, "manifest", "m", "", "Workflow manifest (overrides config and the session's manifest)")
	f.StringVar(&a.opts.sessionsDir, "sessions-dir", "", "Directory holding sessions (overrides config)")
	f.StringVarP(&a.opts.session, "session", "s", "", "Session ID (default: most recently active)")
	f.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&a.opts.logFile, "log-file", "", "Write diagnostics to this file")
	f.StringVar(&a.opts.logFormat, "log-format", "", "Log format: text or json")
	f.StringVar(&a.opts.color, "color", "", "Colored output: auto, always, never")
	_ = f.MarkHidden("user-config")

	cmd.AddGroup(
		&cobra.Group{ID: groupWorkflow, Title: "Workflow Commands:"},
		&cobra.Group{ID: groupSession, Title: "Session Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
	)

	cmd.AddCommand(
		newValidateCmd(a),
		newSessionCmd(a),
		newStatusCmd(a),
		newCheckCmd(a),
		newWriteCmd(a),
		newSkipCmd(a),
		newPathCmd(a),
		newCommandsCmd(a),
		newWatchCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return clierrors.NewArgumentErrorWithUsage(err.Error(), c.UseLine())
	})
	wrapCommands(a, cmd)
	cmd.SetContext(context.Background())
	return cmd
}

// wrapCommands turns positional argument errors into argument CLI errors
// and times every command through the lifecycle handler.
func wrapCommands(a *app, cmd *cobra.Command) {
	if runE := cmd.RunE; runE != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			return lifecycle.Run(a, c.CommandPath(), func() error { return runE(c, args) })
		}
	}
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			if err := validate(c, args); err != nil {
				return clierrors.NewArgumentErrorWithUsage(err.Error(), c.UseLine())
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		wrapCommands(a, sub)
	}
}

// OnCommandComplete implements lifecycle.Handler.
func (a *app) OnCommandComplete(name string, success bool, duration time.Duration) {
	if a.logger == nil {
		return
	}
	a.logger.Debug("command finished", "command", name, "success", success, "duration", duration)
}

// init loads config and logging once flags are parsed.
func (a *app) init(cmd *cobra.Command) error {
	a.stderr = cmd.ErrOrStderr()

	res, err := config.LoadWithOptions(config.LoadOptions{
		ProjectConfigPath: a.opts.configPath,
		UserConfigPath:    a.opts.userConfigPath,
		WarningWriter:     a.stderr,
	})
	if err != nil {
		return clierrors.WrapWithMessage(err, clierrors.Configuration, "loading configuration",
			"Check the file named above, or run 'stagetrail config show'")
	}
	a.loaded = res
	a.cfg = res.Config
	if a.opts.sessionsDir != "" {
		a.cfg.SessionsDir = a.opts.sessionsDir
	}
	if a.opts.color != "" {
		a.cfg.Color = a.opts.color
	}
	output.ConfigureColor(a.cfg.Color)

	logger, err := logging.New(logging.Options{
		Level:  a.opts.logLevel,
		File:   a.opts.logFile,
		Format: a.opts.logFormat,
	}, a.cfg, a.stderr)
	if err != nil {
		return clierrors.Wrap(err, clierrors.Argument)
	}
	a.logger = logger
	return nil
}

// close releases resources opened during the run.
func (a *app) close() {
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil && a.logger != nil {
			a.logger.Warn("closing stage index", "error", err)
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// ExitCodeError carries a process exit code through cobra.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	a := newApp()
	defer a.close()

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			clierrors.FprintError(stderr, exitErr.Err)
		}
		return exitErr.Code
	}
	clierrors.FprintError(stderr, err)
	if cliErr := clierrors.AsCLIError(err); cliErr != nil && cliErr.Category == clierrors.Argument {
		return ExitInvalidArguments
	}
	return ExitFailure
}
