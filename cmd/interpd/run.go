// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"interpd/internal/environment"
	"interpd/internal/issue"
)

type runOptions struct {
	code       string
	env        string
	jsonOutput bool
}

func newRunCommand(app *App) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run code in an environment and stream its events",
		Long: `Run code in an environment and stream its events.

The code comes from -c, from the file argument ("-" reads stdin), or from
stdin when neither is given. Output goes to stdout and interpreter errors to
stderr; with --json every event is written to stdout as one JSON object per
line. The exit status is 1 when the interpreter reported any error.`,
		Example: `  interpd run -c 'echo hello'
  interpd run -e python analysis.py
  printf 'ls\npwd\n' | interpd run --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(app.Stdin, opts.code, args)
			if err != nil {
				return err
			}
			return app.runCode(cmd.Context(), opts.env, code, opts.jsonOutput)
		},
	}

	runCmd.Flags().StringVarP(&opts.code, "code", "c", "", "code to run")
	runCmd.Flags().StringVarP(&opts.env, "env", "e", "", "environment name or alias (default from config)")
	runCmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "write events as JSON lines")
	return runCmd
}

func readCode(stdin io.Reader, code string, args []string) (string, error) {
	switch {
	case code != "" && len(args) > 0:
		return "", errors.New("use either --code or a file argument, not both")
	case code != "":
		return code, nil
	case len(args) == 1 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", issue.WrapWithContext(err, "read code", args[0])
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
}

// runCode runs one submission in a fresh environment and stops it afterwards.
func (a *App) runCode(ctx context.Context, envName, code string, jsonOutput bool) error {
	env, entry, err := a.newEnvironment(envName)
	if err != nil {
		return err
	}
	defer env.Stop()

	printer := newEventPrinter(a, jsonOutput)
	if err := a.submit(ctx, env, entry, code, printer); err != nil {
		return err
	}
	if printer.Failed() {
		return &ExitError{Code: 1}
	}
	return nil
}

// submit streams one submission through printer.
func (a *App) submit(ctx context.Context, env environment.Environment, entry environment.Entry, code string, printer *eventPrinter) error {
	events, err := env.Step(ctx, code)
	if err != nil {
		return stepError(entry.Name, err)
	}
	for ev := range events {
		if err := printer.Print(ev); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return &ExitError{Code: 130, Err: err}
	}
	return nil
}
