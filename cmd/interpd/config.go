// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"interpd/internal/config"
)

// newConfigCommand creates the `interpd config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage interpd configuration",
		Long: `Manage interpd configuration.

Configuration is stored in:
  - Linux: ~/.config/interpd/config.cue
  - macOS: ~/Library/Application Support/interpd/config.cue
  - Windows: %APPDATA%\interpd\config.cue

Every scalar setting can be overridden with an INTERPD_ variable, e.g.
INTERPD_LOG_LEVEL=debug or INTERPD_SESSION_STOP_TIMEOUT=10s.`,
		// The config commands must work while config.cue is broken.
		PersistentPreRunE: func(*cobra.Command, []string) error {
			app.logger = newLogger(app.Stderr, config.LogLevelInfo)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadWithPath(cmd.Context(), config.LoadOptions{ConfigFilePath: app.flags.configFile})
			if err != nil {
				return err
			}
			source := loaded.Path
			if source == "" {
				source = "(using defaults)"
			}
			fmt.Fprintf(app.Stdout, "// Config file: %s\n", source)
			fmt.Fprint(app.Stdout, config.GenerateCUE(loaded.Config))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.flags.configFile != "" {
				fmt.Fprintln(app.Stdout, app.flags.configFile)
				return nil
			}
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.Stdout, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	var dir string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, created, err := config.CreateDefaultConfig(dir)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(app.Stdout, "%s %s\n", WarningStyle.Render("Config file already exists:"), path)
				return nil
			}
			fmt.Fprintf(app.Stdout, "%s %s\n", SuccessStyle.Render("Created config file:"), path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&dir, "dir", "", "directory to create config.cue in (default is the config dir)")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}
