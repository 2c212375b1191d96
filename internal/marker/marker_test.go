// SPDX-License-Identifier: MPL-2.0

package marker

import (
	"errors"
	"testing"
)

func TestDelimiters_ParseActiveLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		wantLine int
		wantOK   bool
	}{
		{name: "bare marker", line: "##active_line42##", wantLine: 42, wantOK: true},
		{name: "line one", line: "##active_line1##", wantLine: 1, wantOK: true},
		{name: "embedded in text", line: "prefix ##active_line7## suffix", wantLine: 7, wantOK: true},
		{name: "plain text", line: "plain text", wantOK: false},
		{name: "empty", line: "", wantOK: false},
		{name: "missing digits", line: "##active_line##", wantOK: false},
		{name: "missing suffix", line: "##active_line12", wantOK: false},
		{name: "non-digit number", line: "##active_lineX##", wantOK: false},
		{name: "second occurrence valid", line: "##active_line## ##active_line3##", wantLine: 3, wantOK: true},
		{name: "sentinel is not an active line", line: DefaultEndOfExecution, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Default.ParseActiveLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseActiveLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if got != tt.wantLine {
				t.Errorf("ParseActiveLine(%q) = %d, want %d", tt.line, got, tt.wantLine)
			}
		})
	}
}

func TestDelimiters_IsCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want bool
	}{
		{"##end_of_execution##", true},
		{"output ##end_of_execution##", true},
		{"##end_of_execution#", false},
		{"##active_line1##", false},
		{"end_of_execution", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := Default.IsCompletion(tt.line); got != tt.want {
			t.Errorf("IsCompletion(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestDelimiters_CutCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line       string
		wantBefore string
		wantFound  bool
	}{
		{"##end_of_execution##", "", true},
		{"partial##end_of_execution##", "partial", true},
		{"no newline ##end_of_execution##trailing", "no newline ", true},
		{"plain text", "plain text", false},
	}

	for _, tt := range tests {
		before, found := Default.CutCompletion(tt.line)
		if before != tt.wantBefore || found != tt.wantFound {
			t.Errorf("CutCompletion(%q) = %q, %v, want %q, %v", tt.line, before, found, tt.wantBefore, tt.wantFound)
		}
	}
}

func TestDelimiters_ActiveLineRoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 9, 10, 123, 99999} {
		got, ok := Default.ParseActiveLine(Default.ActiveLine(n))
		if !ok || got != n {
			t.Errorf("ParseActiveLine(ActiveLine(%d)) = %d, %v", n, got, ok)
		}
	}
}

func TestDelimiters_WithDefaults(t *testing.T) {
	t.Parallel()

	d := Delimiters{EndOfExecution: "@@done@@"}.WithDefaults()
	if d.ActiveLinePrefix != DefaultActiveLinePrefix {
		t.Errorf("ActiveLinePrefix = %q, want %q", d.ActiveLinePrefix, DefaultActiveLinePrefix)
	}
	if d.Suffix != DefaultSuffix {
		t.Errorf("Suffix = %q, want %q", d.Suffix, DefaultSuffix)
	}
	if d.EndOfExecution != "@@done@@" {
		t.Errorf("EndOfExecution = %q, want %q", d.EndOfExecution, "@@done@@")
	}
}

func TestDelimiters_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		delims    Delimiters
		wantField string
	}{
		{name: "default", delims: Default},
		{name: "custom", delims: Delimiters{ActiveLinePrefix: "@@line", Suffix: "@@", EndOfExecution: "@@eof@@"}},
		{name: "empty prefix", delims: Delimiters{Suffix: "##", EndOfExecution: "##x##"}, wantField: "active_line_prefix"},
		{name: "blank suffix", delims: Delimiters{ActiveLinePrefix: "##l", Suffix: "  ", EndOfExecution: "##x##"}, wantField: "suffix"},
		{name: "quote in sentinel", delims: Delimiters{ActiveLinePrefix: "##l", Suffix: "##", EndOfExecution: "it's"}, wantField: "end_of_execution"},
		{name: "dollar in prefix", delims: Delimiters{ActiveLinePrefix: "$l", Suffix: "##", EndOfExecution: "##x##"}, wantField: "active_line_prefix"},
		{name: "newline in suffix", delims: Delimiters{ActiveLinePrefix: "##l", Suffix: "#\n", EndOfExecution: "##x##"}, wantField: "suffix"},
		{name: "digit prefix", delims: Delimiters{ActiveLinePrefix: "##l1", Suffix: "##", EndOfExecution: "##x##"}, wantField: "active_line_prefix"},
		{name: "digit suffix", delims: Delimiters{ActiveLinePrefix: "##l", Suffix: "9#", EndOfExecution: "##x##"}, wantField: "active_line_prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.delims.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidDelimiters) {
				t.Fatalf("Validate() error = %v, want ErrInvalidDelimiters", err)
			}
			var invalid *InvalidDelimitersError
			if !errors.As(err, &invalid) {
				t.Fatalf("Validate() error type = %T, want *InvalidDelimitersError", err)
			}
			if invalid.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", invalid.Field, tt.wantField)
			}
		})
	}
}
