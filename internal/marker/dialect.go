// SPDX-License-Identifier: MPL-2.0

package marker

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

var (
	// Shell writes markers with POSIX echo. It serves bash, sh, zsh and the
	// embedded virtual shell.
	Shell = Dialect{
		Name:          "sh",
		CommentPrefix: "#",
		Print:         func(text string) string { return "echo " + shellQuote(text) },
		PrintErr:      func(text string) string { return "echo " + shellQuote(text) + " >&2" },
		Separator:     "; ",
	}

	// PowerShell writes markers with Write-Output. PowerShell reading from
	// standard input needs a blank line to close any pending multi-line
	// statement, hence the trailer.
	PowerShell = Dialect{
		Name:          "powershell",
		CommentPrefix: "#",
		Print:         func(text string) string { return "Write-Output '" + text + "'" },
		PrintErr:      func(text string) string { return "[Console]::Error.WriteLine('" + text + "')" },
		Separator:     "; ",
		Trailer:       "\n",
	}
)

// Dialect describes how to express marker statements in one interpreter's syntax.
type Dialect struct {
	// Name identifies the dialect in logs.
	Name string
	// CommentPrefix marks a line as a pure comment once leading whitespace is trimmed.
	CommentPrefix string
	// Print returns a statement printing text to standard output.
	Print func(text string) string
	// PrintErr returns a statement printing text to standard error.
	// When nil the sentinel is only emitted on standard output.
	PrintErr func(text string) string
	// Separator joins two statements on one line.
	Separator string
	// Trailer is appended after the sentinel statement.
	Trailer string
}

// IsExecutable reports whether a physical line receives an active-line marker.
// The check is deliberately shallow: trim whitespace, reject blanks and comments.
func (d Dialect) IsExecutable(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	return d.CommentPrefix == "" || !strings.HasPrefix(trimmed, d.CommentPrefix)
}

// CompletionStatement returns the single statement that prints the sentinel.
func (d Dialect) CompletionStatement(delims Delimiters) string {
	stmt := d.Print(delims.EndOfExecution)
	if d.PrintErr != nil {
		stmt += d.Separator + d.PrintErr(delims.EndOfExecution)
	}
	return stmt
}

// CompletionStreams returns how many output streams carry the sentinel.
func (d Dialect) CompletionStreams() int {
	if d.PrintErr != nil {
		return 2
	}
	return 1
}

// Annotate returns code with an active-line statement before every
// executable line and the completion statement after the last line.
// Line numbers are 1-based and refer to the original code.
func (d Dialect) Annotate(code string, delims Delimiters) string {
	lines := strings.Split(code, "\n")

	var b strings.Builder
	b.Grow(len(code) + len(lines)*32)
	for i, line := range lines {
		if d.IsExecutable(line) {
			b.WriteString(d.Print(delims.ActiveLine(i + 1)))
			b.WriteByte('\n')
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(d.CompletionStatement(delims))
	b.WriteByte('\n')
	b.WriteString(d.Trailer)
	return b.String()
}

// shellQuote quotes text as a single POSIX shell word. Delimiters are
// validated to be printable, so the fallback only guards against misuse.
func shellQuote(text string) string {
	quoted, err := syntax.Quote(text, syntax.LangPOSIX)
	if err != nil {
		return "'" + text + "'"
	}
	return quoted
}
