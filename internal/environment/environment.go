// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

const (
	// KindActiveLine reports the line about to execute.
	KindActiveLine EventKind = "active_line"
	// KindConsole carries a chunk of interpreter output.
	KindConsole EventKind = "console"

	// FormatOutput marks content read from standard output.
	FormatOutput Format = "output"
	// FormatError marks content read from standard error or produced by the driver.
	FormatError Format = "error"
)

const (
	// StateIdle accepts a new submission.
	StateIdle State = iota
	// StateSubmitted means code was accepted and is being written to the interpreter.
	StateSubmitted
	// StateStreaming means the interpreter received the code and output is being consumed.
	StateStreaming
	// StateCompleted means the completion sentinel was observed.
	StateCompleted
	// StateTerminated means the interpreter process is gone; Reset returns to StateIdle.
	StateTerminated
)

var (
	// ErrStartup is the sentinel error wrapped by StartupError.
	ErrStartup = errors.New("interpreter failed to start")
	// ErrSessionBusy is returned when Step is called while a submission is in flight.
	ErrSessionBusy = errors.New("environment is busy with another submission")
	// ErrSessionTerminated is returned when Step is called after Stop or Terminate.
	ErrSessionTerminated = errors.New("environment has been terminated")
)

type (
	// EventKind distinguishes progress events from console output.
	EventKind string

	// Format identifies the stream a console event originated from.
	Format string

	// State is the execution state of an environment.
	State int

	// OutputEvent is one item of the sequence returned by Step.
	OutputEvent struct {
		Kind    EventKind `json:"type"`
		Format  Format    `json:"format,omitempty"`
		Content string    `json:"content,omitempty"`
		// Line is the 1-based source line of an active_line event, 0 otherwise.
		Line int `json:"line,omitempty"`
	}

	// Capabilities is the contract every interpreter variant satisfies.
	Capabilities interface {
		// Name returns the canonical variant name.
		Name() string
		// Aliases returns the names the variant is registered under.
		Aliases() []string
		// LaunchCommand returns the argv used to start the interpreter. It must not
		// depend on user profiles or startup scripts.
		LaunchCommand() []string
		// Preprocess returns the script actually sent to the interpreter.
		Preprocess(code string) string
		// CleanLine strips presentation artifacts from a raw output line. It is idempotent.
		CleanLine(line string) string
		// DetectActiveLine returns the line number carried by an active-line marker.
		DetectActiveLine(line string) (int, bool)
		// DetectCompletion reports whether line carries the completion sentinel.
		DetectCompletion(line string) bool
	}

	// CompletionStreamer is implemented by variants that emit the completion
	// sentinel on more than one output stream.
	CompletionStreamer interface {
		CompletionStreams() int
	}

	// CompletionCutter is implemented by variants that can recover output
	// printed on the same line as the completion sentinel.
	CompletionCutter interface {
		CutCompletion(line string) (before string, found bool)
	}

	// Environment is the caller-facing side of a variant.
	Environment interface {
		// Name returns the canonical variant name.
		Name() string
		// Step submits code and returns a lazy, single-pass sequence of events.
		// A non-nil error means the submission was rejected or the interpreter
		// could not be started; no events are produced in that case.
		Step(ctx context.Context, code string) (iter.Seq[OutputEvent], error)
		// State returns the current execution state.
		State() State
		// Stop shuts the environment down gracefully.
		Stop()
		// Terminate kills the interpreter. It is idempotent and safe to call from
		// any goroutine, including while another goroutine drains Step's sequence.
		Terminate()
	}

	// StartupError is returned by Step when the interpreter process could not be spawned.
	StartupError struct {
		Command []string
		Cause   error
	}
)

// Error implements the error interface.
func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start interpreter %q: %v", strings.Join(e.Command, " "), e.Cause)
}

// Unwrap returns both ErrStartup and the underlying cause.
func (e *StartupError) Unwrap() []error { return []error{ErrStartup, e.Cause} }

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitted:
		return "submitted"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ActiveLineEvent returns an active_line event for line n.
func ActiveLineEvent(n int) OutputEvent {
	return OutputEvent{Kind: KindActiveLine, Line: n}
}

// ConsoleEvent returns a console event with the given format and content.
func ConsoleEvent(format Format, content string) OutputEvent {
	return OutputEvent{Kind: KindConsole, Format: format, Content: content}
}

// IsError reports whether e is a console event on the error stream.
func (e OutputEvent) IsError() bool {
	return e.Kind == KindConsole && e.Format == FormatError
}

// String renders the event for logs and plain-text output.
func (e OutputEvent) String() string {
	if e.Kind == KindActiveLine {
		return fmt.Sprintf("active_line(%d)", e.Line)
	}
	return fmt.Sprintf("%s/%s(%q)", e.Kind, e.Format, e.Content)
}

// completionPrefix returns the output preceding the sentinel in line.
func completionPrefix(caps Capabilities, line string) string {
	if cc, ok := caps.(CompletionCutter); ok {
		before, _ := cc.CutCompletion(line)
		return before
	}
	return ""
}

func completionStreams(caps Capabilities) int {
	if cs, ok := caps.(CompletionStreamer); ok && cs.CompletionStreams() > 0 {
		return cs.CompletionStreams()
	}
	return 1
}
