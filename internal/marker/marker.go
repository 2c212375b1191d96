// SPDX-License-Identifier: MPL-2.0

package marker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultActiveLinePrefix opens an active-line marker.
	DefaultActiveLinePrefix = "##active_line"
	// DefaultSuffix closes an active-line marker.
	DefaultSuffix = "##"
	// DefaultEndOfExecution is the completion sentinel.
	DefaultEndOfExecution = "##end_of_execution##"

	// forbiddenDelimiterChars cannot appear in delimiters because the
	// delimiters are embedded in quoted string literals of every dialect.
	forbiddenDelimiterChars = "'\"`$\\\r\n\x00"
)

// ErrInvalidDelimiters is the sentinel error wrapped by InvalidDelimitersError.
var ErrInvalidDelimiters = errors.New("invalid marker delimiters")

// Default holds the delimiters used unless configuration overrides them.
var Default = Delimiters{
	ActiveLinePrefix: DefaultActiveLinePrefix,
	Suffix:           DefaultSuffix,
	EndOfExecution:   DefaultEndOfExecution,
}

type (
	// Delimiters is the wire format of the marker protocol. The values are
	// carried inside the interpreter's standard output, so they must not
	// plausibly collide with incidental output.
	Delimiters struct {
		// ActiveLinePrefix precedes the line number of an active-line marker.
		ActiveLinePrefix string `json:"active_line_prefix" mapstructure:"active_line_prefix"`
		// Suffix follows the line number of an active-line marker.
		Suffix string `json:"suffix" mapstructure:"suffix"`
		// EndOfExecution is the completion sentinel.
		EndOfExecution string `json:"end_of_execution" mapstructure:"end_of_execution"`
	}

	// InvalidDelimitersError is returned when a Delimiters value cannot be
	// embedded safely in generated code.
	InvalidDelimitersError struct {
		Field  string
		Value  string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidDelimitersError) Error() string {
	return fmt.Sprintf("invalid marker %s %q: %s", e.Field, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidDelimiters so callers can use errors.Is for programmatic detection.
func (e *InvalidDelimitersError) Unwrap() error { return ErrInvalidDelimiters }

// WithDefaults returns a copy of d where every empty field is taken from Default.
func (d Delimiters) WithDefaults() Delimiters {
	if d.ActiveLinePrefix == "" {
		d.ActiveLinePrefix = Default.ActiveLinePrefix
	}
	if d.Suffix == "" {
		d.Suffix = Default.Suffix
	}
	if d.EndOfExecution == "" {
		d.EndOfExecution = Default.EndOfExecution
	}
	return d
}

// Validate returns nil if the delimiters can be embedded in generated code
// and parsed back unambiguously.
func (d Delimiters) Validate() error {
	fields := []struct{ name, value string }{
		{"active_line_prefix", d.ActiveLinePrefix},
		{"suffix", d.Suffix},
		{"end_of_execution", d.EndOfExecution},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &InvalidDelimitersError{Field: f.name, Value: f.value, Reason: "must not be empty"}
		}
		if strings.ContainsAny(f.value, forbiddenDelimiterChars) {
			return &InvalidDelimitersError{Field: f.name, Value: f.value, Reason: "must not contain quotes, '$', backslashes or line breaks"}
		}
	}
	if isDigit(d.Suffix[0]) || isDigit(d.ActiveLinePrefix[len(d.ActiveLinePrefix)-1]) {
		return &InvalidDelimitersError{Field: "active_line_prefix", Value: d.ActiveLinePrefix, Reason: "must not touch the line number with a digit"}
	}
	return nil
}

// ActiveLine returns the marker reporting that line n is about to execute.
func (d Delimiters) ActiveLine(n int) string {
	return d.ActiveLinePrefix + strconv.Itoa(n) + d.Suffix
}

// ParseActiveLine finds an active-line marker anywhere in line and returns
// its line number.
func (d Delimiters) ParseActiveLine(line string) (int, bool) {
	rest := line
	for {
		idx := strings.Index(rest, d.ActiveLinePrefix)
		if idx < 0 {
			return 0, false
		}
		rest = rest[idx+len(d.ActiveLinePrefix):]

		end := 0
		for end < len(rest) && isDigit(rest[end]) {
			end++
		}
		if end > 0 && strings.HasPrefix(rest[end:], d.Suffix) {
			if n, err := strconv.Atoi(rest[:end]); err == nil {
				return n, true
			}
		}
	}
}

// IsCompletion reports whether line carries the completion sentinel.
func (d Delimiters) IsCompletion(line string) bool {
	return strings.Contains(line, d.EndOfExecution)
}

// CutCompletion reports whether line carries the completion sentinel and
// returns the text preceding it, which is output the script printed without
// a trailing newline.
func (d Delimiters) CutCompletion(line string) (before string, found bool) {
	before, _, found = strings.Cut(line, d.EndOfExecution)
	return before, found
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
