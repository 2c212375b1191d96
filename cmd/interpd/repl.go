// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/spf13/cobra"

	"interpd/internal/environment"
	"interpd/internal/issue"
)

const replQuit = ".exit"

func newReplCommand(app *App) *cobra.Command {
	var envName string

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Submit code to one environment line by line",
		Long: `Submit code to one long-lived environment, one line at a time.

A line ending in a backslash continues on the next line. State such as
variables and the working directory persists between submissions. Type
` + replQuit + ` or send EOF to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.repl(cmd.Context(), envName)
		},
	}
	replCmd.Flags().StringVarP(&envName, "env", "e", "", "environment name or alias (default from config)")
	return replCmd
}

type resetter interface {
	Reset()
}

func (a *App) repl(ctx context.Context, envName string) error {
	env, entry, err := a.newEnvironment(envName)
	if err != nil {
		return err
	}
	defer env.Stop()

	prompt := ""
	if isTerminal(a.Stdin) {
		prompt = NameStyle.Render(entry.Name) + "> "
	}

	printer := newEventPrinter(a, false)
	for code := range readSubmissions(a.Stdin, a.Stderr, prompt) {
		if strings.TrimSpace(code) == replQuit {
			return nil
		}
		if err := a.submit(ctx, env, entry, code, printer); err != nil {
			if ctx.Err() != nil {
				return err
			}
			if !a.printError(a.Stderr, err) {
				fmt.Fprintln(a.Stderr, ErrorStyle.Render("Error: ")+err.Error())
			}
			continue
		}
		if env.State() == environment.StateTerminated {
			fmt.Fprintln(a.Stderr, WarningStyle.Render("The interpreter exited; the next submission starts a new one."))
			a.printIssue(a.Stderr, issue.InterpreterExitedId)
			if r, ok := env.(resetter); ok {
				r.Reset()
			}
		}
	}
	return nil
}

// readSubmissions yields one submission per line, joining lines that end in
// a backslash. The prompt is written before every read when non-empty.
func readSubmissions(in io.Reader, promptOut io.Writer, prompt string) iter.Seq[string] {
	return func(yield func(string) bool) {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

		var pending []string
		for {
			if prompt != "" {
				p := prompt
				if len(pending) > 0 {
					p = "... "
				}
				fmt.Fprint(promptOut, p)
			}
			if !scanner.Scan() {
				if len(pending) > 0 {
					yield(strings.Join(pending, "\n"))
				}
				return
			}

			line := scanner.Text()
			if rest, ok := strings.CutSuffix(line, `\`); ok {
				pending = append(pending, rest)
				continue
			}
			pending = append(pending, line)
			code := strings.Join(pending, "\n")
			pending = pending[:0]
			if strings.TrimSpace(code) == "" {
				continue
			}
			if !yield(code) {
				return
			}
		}
	}
}
