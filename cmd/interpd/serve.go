// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"interpd/internal/config"
	"interpd/internal/environment"
	"interpd/internal/issue"
	"interpd/internal/server"
)

func newServeCommand(app *App) *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve environments over websockets",
		Long: `Serve environments over websockets.

Each connection to /ws gets its own environment, chosen with ?env=<name>.
Send {"code": "..."} frames; the server answers with one frame per event
followed by {"type": "done"}. {"type": "interrupt"} kills the running
submission. Closing the connection terminates the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = app.cfg.Server.Addr
			}
			srv := server.New(server.Options{
				Registry:           app.Registry,
				DefaultEnvironment: app.cfg.DefaultEnvironment,
				EnvironmentOptions: func(entry environment.Entry) environment.Options {
					return app.cfg.EnvironmentOptions(entry, app.logger)
				},
				Logger: app.logger,
			})

			err := srv.ListenAndServe(cmd.Context(), addr, func(a net.Addr) {
				fmt.Fprintf(app.Stderr, "%s ws://%s/ws\n", SuccessStyle.Render("Listening on"), a)
			})
			if err != nil {
				return issue.NewErrorContext().
					WithOperation("serve").
					WithResource(addr).
					WithIssue(issue.ServerStartFailedId).
					Wrap(err).
					BuildError()
			}
			return nil
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, "+config.DefaultServerAddr+")")
	return serveCmd
}
