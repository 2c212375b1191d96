// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"interpd/internal/bridge"
)

func newBridgeCommand(app *App) *cobra.Command {
	var envName string

	bridgeCmd := &cobra.Command{
		Use:   "bridge <command>",
		Short: "Evaluate a command and print the outcome as one JSON object",
		Long: `Evaluate a command and print the outcome as one JSON object:

  {"success": true, "result": "..."}
  {"success": false, "error": "...", "traceback": "..."}

This is meant for programs that embed interpd and want a single result
instead of an event stream. The exit status is 1 when success is false.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")

			var envelope bridge.Envelope
			if env, _, err := app.newEnvironment(envName); err != nil {
				envelope = bridge.Failure(err)
			} else {
				envelope = bridge.Evaluate(cmd.Context(), env, command)
				env.Stop()
			}

			fmt.Fprintln(app.Stdout, envelope.JSON())
			if !envelope.Success {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
	bridgeCmd.Flags().StringVarP(&envName, "env", "e", "python", "environment name or alias")
	return bridgeCmd
}
