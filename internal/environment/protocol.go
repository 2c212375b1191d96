// SPDX-License-Identifier: MPL-2.0

package environment

import "interpd/internal/marker"

// markerProtocol implements the text side of Capabilities for every variant
// that narrates its progress with marker statements.
type markerProtocol struct {
	dialect marker.Dialect
	delims  marker.Delimiters
}

func newMarkerProtocol(dialect marker.Dialect, delims marker.Delimiters) markerProtocol {
	return markerProtocol{dialect: dialect, delims: delims.WithDefaults()}
}

// Preprocess annotates code with active-line markers and the completion sentinel.
func (m markerProtocol) Preprocess(code string) string {
	return m.dialect.Annotate(code, m.delims)
}

// CleanLine strips colour escape sequences.
func (m markerProtocol) CleanLine(line string) string { return CleanLine(line) }

// DetectActiveLine parses an active-line marker anywhere in line.
func (m markerProtocol) DetectActiveLine(line string) (int, bool) {
	return m.delims.ParseActiveLine(line)
}

// DetectCompletion reports whether line carries the completion sentinel.
func (m markerProtocol) DetectCompletion(line string) bool {
	return m.delims.IsCompletion(line)
}

// CutCompletion returns the text preceding the completion sentinel.
func (m markerProtocol) CutCompletion(line string) (string, bool) {
	return m.delims.CutCompletion(line)
}

// CompletionStreams returns how many streams carry the sentinel.
func (m markerProtocol) CompletionStreams() int { return m.dialect.CompletionStreams() }
