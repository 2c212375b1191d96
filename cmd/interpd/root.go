// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"interpd/internal/config"
	"interpd/internal/environment"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// App holds the dependencies shared by every command.
	App struct {
		Config   config.Provider
		Registry *environment.Registry
		Stdin    io.Reader
		Stdout   io.Writer
		Stderr   io.Writer

		flags  globalFlags
		cfg    *config.Config
		logger *slog.Logger
	}

	globalFlags struct {
		configFile string
		verbose    bool
		logLevel   string
	}
)

// NewApp returns an App wired to the process streams.
func NewApp() *App {
	return &App{
		Config:   config.NewProvider(),
		Registry: environment.DefaultRegistry(),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

func newRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "interpd",
		Short: "Drive language interpreters and stream structured execution events",
		Long: TitleStyle.Render("interpd") + SubtitleStyle.Render(" - drive language interpreters as long-lived subprocesses") + `

interpd keeps an interpreter (bash, PowerShell, an embedded POSIX shell,
or a one-shot python/node) running and reports, for every submission,
which line is executing and what it printed on stdout and stderr.

` + SubtitleStyle.Render("Examples:") + `
  interpd run -c 'echo hello'          Run code in the default environment
  interpd run -e python script.py      Run a file once with python
  interpd run --json -c 'ls'           Stream events as JSON lines
  interpd repl -e shell                Submit code line by line
  interpd serve                        Serve environments over websockets`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.flags.configFile, "config", "", "config file (default is <config dir>/interpd/config.cue)")
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output (implies --log-level debug)")
	flags.StringVar(&app.flags.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(
		newRunCommand(app),
		newReplCommand(app),
		newEnvsCommand(app),
		newToolCommand(app),
		newBridgeCommand(app),
		newServeCommand(app),
		newConfigCommand(app),
		newInternalCommand(app),
	)
	rootCmd.SetIn(app.Stdin)
	rootCmd.SetOut(app.Stdout)
	rootCmd.SetErr(app.Stderr)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI with the process arguments and exits with the
// command's status. It is called by main.main().
func Execute() {
	app := NewApp()
	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(app.handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// init loads configuration and installs the logger. It runs before every
// command except the internal ones.
func (a *App) init(ctx context.Context) error {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configFile})
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.flags.logLevel != "" {
		level = config.LogLevel(a.flags.logLevel)
		if err := level.Validate(); err != nil {
			return err
		}
	}
	if a.flags.verbose {
		level = config.LogLevelDebug
	}

	a.logger = newLogger(a.Stderr, level)
	slog.SetDefault(a.logger)
	return nil
}

// newLogger returns a slog.Logger backed by charmbracelet/log.
func newLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Level:           log.Level(level.SlogLevel()),
		Prefix:          "interpd",
		ReportTimestamp: level == config.LogLevelDebug,
	})
	return slog.New(handler)
}

// newEnvironment creates the named environment, or the configured default
// when name is empty.
func (a *App) newEnvironment(name string) (environment.Environment, environment.Entry, error) {
	if name == "" {
		name = a.cfg.DefaultEnvironment
	}
	entry, ok := a.Registry.Lookup(name)
	if !ok {
		return nil, environment.Entry{}, unknownEnvironmentError(name, a.Registry.Names())
	}
	env, err := entry.Factory(a.cfg.EnvironmentOptions(entry, a.logger))
	if err != nil {
		return nil, entry, invalidEnvironmentError(entry.Name, err)
	}
	return env, entry, nil
}
