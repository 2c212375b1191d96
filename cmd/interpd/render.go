// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"interpd/internal/environment"
	"interpd/internal/issue"
)

type (
	// eventPrinter writes the events of one submission to the command's streams.
	eventPrinter struct {
		stdout  io.Writer
		stderr  io.Writer
		json    *json.Encoder
		verbose bool
		styled  bool

		errors int
	}
)

func newEventPrinter(app *App, jsonOutput bool) *eventPrinter {
	p := &eventPrinter{
		stdout:  app.Stdout,
		stderr:  app.Stderr,
		verbose: app.flags.verbose,
		styled:  isTerminal(app.Stderr),
	}
	if jsonOutput {
		p.json = json.NewEncoder(app.Stdout)
	}
	return p
}

// Print writes one event. Console output goes to stdout, console errors to
// stderr, and active lines are only shown with --verbose or --json.
func (p *eventPrinter) Print(ev environment.OutputEvent) error {
	if ev.IsError() {
		p.errors++
	}
	if p.json != nil {
		return p.json.Encode(ev)
	}

	switch {
	case ev.Kind == environment.KindActiveLine:
		if !p.verbose {
			return nil
		}
		return p.writeLine(p.stderr, fmt.Sprintf("line %d", ev.Line), activeLineStyle)
	case ev.IsError():
		return p.writeLine(p.stderr, ev.Content, stderrLineStyle)
	default:
		return p.writeLine(p.stdout, ev.Content, nil)
	}
}

// Failed reports whether any console/error event was printed.
func (p *eventPrinter) Failed() bool { return p.errors > 0 }

// writeLine writes content followed by a newline unless it already ends in one.
// One-shot variants yield whole chunks, interactive ones yield bare lines.
func (p *eventPrinter) writeLine(w io.Writer, content string, style interface{ Render(...string) string }) error {
	text := strings.TrimSuffix(content, "\n")
	if style != nil && p.styled && w == p.stderr {
		text = style.Render(text)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// isTerminal reports whether w is a terminal.
func isTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderMarkdown renders md with glamour when w is a terminal and returns it
// unchanged otherwise.
func renderMarkdown(w io.Writer, md string) string {
	if !isTerminal(w) {
		return md
	}
	out, err := glamour.Render(md, "auto")
	if err != nil {
		return md
	}
	return out
}

// handleError is the fang error handler. Errors printError does not know
// are rendered by fang.
func (a *App) handleError(w io.Writer, styles fang.Styles, err error) {
	if !a.printError(w, err) {
		fang.DefaultErrorHandler(w, styles, err)
	}
}

// printError prints ActionableErrors with their suggestions and, with
// --verbose, the catalog entry they point at. Other errors are printed on one
// line. It reports false for errors it left to the caller.
func (a *App) printError(w io.Writer, err error) bool {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return true
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return false
	}

	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+ae.Format(a.flags.verbose))
	a.printIssue(w, ae.Issue)
	return true
}

// printIssue renders the catalog entry id with --verbose. Without it only
// the entry's external links are listed.
func (a *App) printIssue(w io.Writer, id issue.Id) {
	iss := issue.Get(id)
	if iss == nil {
		return
	}
	if !a.flags.verbose {
		for _, link := range iss.ExtLinks() {
			fmt.Fprintln(w, SubtitleStyle.Render("  See also: ")+string(link))
		}
		return
	}
	style := "notty"
	if isTerminal(os.Stderr) {
		style = "dark"
	}
	if rendered, err := iss.Render(style); err == nil {
		fmt.Fprint(w, rendered)
	}
}
