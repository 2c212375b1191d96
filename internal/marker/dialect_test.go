// SPDX-License-Identifier: MPL-2.0

package marker

import (
	"strings"
	"testing"
)

func TestDialect_IsExecutable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want bool
	}{
		{"echo hi", true},
		{"   echo hi   ", true},
		{"if true; then", true},
		{"", false},
		{"   ", false},
		{"\t", false},
		{"# comment", false},
		{"    # indented comment", false},
		{"echo # trailing comment", true},
	}

	for _, tt := range tests {
		if got := Shell.IsExecutable(tt.line); got != tt.want {
			t.Errorf("IsExecutable(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestDialect_Annotate_NoExecutableLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
	}{
		{name: "single comment", code: "# only a comment"},
		{name: "comments and blanks", code: "# one\n\n   \n  # two"},
		{name: "empty", code: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for _, d := range []Dialect{Shell, PowerShell} {
				got := d.Annotate(tt.code, Default)
				want := tt.code + "\n" + d.CompletionStatement(Default) + "\n" + d.Trailer
				if got != want {
					t.Errorf("%s: Annotate(%q) =\n%q\nwant\n%q", d.Name, tt.code, got, want)
				}
				if strings.Contains(got, DefaultActiveLinePrefix) {
					t.Errorf("%s: Annotate(%q) injected an active-line marker", d.Name, tt.code)
				}
			}
		})
	}
}

func TestDialect_Annotate_MarkerPrecedesEachExecutableLine(t *testing.T) {
	t.Parallel()

	code := strings.Join([]string{
		"# setup",
		"x=1",
		"",
		"if [ \"$x\" = 1 ]; then",
		"  echo one",
		"fi",
		"   # done",
	}, "\n")

	annotated := Shell.Annotate(code, Default)
	out := strings.Split(strings.TrimSuffix(annotated, "\n"), "\n")

	// Last line is the completion statement.
	if last := out[len(out)-1]; last != Shell.CompletionStatement(Default) {
		t.Fatalf("last line = %q, want completion statement", last)
	}
	out = out[:len(out)-1]

	original := strings.Split(code, "\n")
	idx := 0
	for i, line := range original {
		lineNo := i + 1
		if Shell.IsExecutable(line) {
			want := Shell.Print(Default.ActiveLine(lineNo))
			if out[idx] != want {
				t.Fatalf("line %d: marker = %q, want %q", lineNo, out[idx], want)
			}
			idx++
		}
		if out[idx] != line {
			t.Fatalf("line %d: got %q, want original %q", lineNo, out[idx], line)
		}
		idx++
	}
	if idx != len(out) {
		t.Fatalf("annotated script has %d extra lines", len(out)-idx)
	}

	if got := strings.Count(annotated, DefaultActiveLinePrefix); got != 4 {
		t.Errorf("marker count = %d, want 4", got)
	}
}

func TestDialect_ShellStatementsQuote(t *testing.T) {
	t.Parallel()

	if got, want := Shell.Print("##active_line3##"), "echo '##active_line3##'"; got != want {
		t.Errorf("Print() = %q, want %q", got, want)
	}
	if got, want := Shell.PrintErr("##end_of_execution##"), "echo '##end_of_execution##' >&2"; got != want {
		t.Errorf("PrintErr() = %q, want %q", got, want)
	}
	if got, want := Shell.CompletionStatement(Default), "echo '##end_of_execution##'; echo '##end_of_execution##' >&2"; got != want {
		t.Errorf("CompletionStatement() = %q, want %q", got, want)
	}
	if Shell.CompletionStreams() != 2 {
		t.Errorf("CompletionStreams() = %d, want 2", Shell.CompletionStreams())
	}
}

func TestDialect_PowerShellStatements(t *testing.T) {
	t.Parallel()

	if got, want := PowerShell.Print("##active_line1##"), "Write-Output '##active_line1##'"; got != want {
		t.Errorf("Print() = %q, want %q", got, want)
	}
	annotated := PowerShell.Annotate("Write-Output 'hi'", Default)
	if !strings.HasPrefix(annotated, "Write-Output '##active_line1##'\nWrite-Output 'hi'\n") {
		t.Errorf("Annotate() = %q", annotated)
	}
	if !strings.HasSuffix(annotated, "\n\n") {
		t.Errorf("Annotate() = %q, want trailing blank line", annotated)
	}
}
