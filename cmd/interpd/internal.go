// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"interpd/internal/environment"
)

// newInternalCommand creates the parent of hidden subcommands that interpd
// runs as its own child processes. They skip configuration loading.
func newInternalCommand(app *App) *cobra.Command {
	internalCmd := &cobra.Command{
		Use:    "internal",
		Short:  "Internal commands (not for direct use)",
		Hidden: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
	}

	internalCmd.AddCommand(&cobra.Command{
		Use:   "virtual-shell",
		Short: "Serve the embedded POSIX shell on stdin/stdout (internal use only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code := environment.ServeVirtualShell(cmd.Context(), app.Stdin, app.Stdout, app.Stderr)
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	})
	return internalCmd
}
