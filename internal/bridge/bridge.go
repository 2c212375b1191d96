// SPDX-License-Identifier: MPL-2.0

// Package bridge evaluates one command through an environment and reports the
// outcome as a single JSON envelope, for callers that want a result rather
// than an event stream.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"interpd/internal/environment"
)

// ErrNoCommand is reported when Evaluate gets an empty command.
var ErrNoCommand = errors.New("no command provided")

// Envelope is the outcome of one evaluation.
type Envelope struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	// Error is the first non-blank line of the error output.
	Error string `json:"error,omitempty"`
	// Traceback is the full error output.
	Traceback string `json:"traceback,omitempty"`
}

// Evaluate submits command to env, drains every event and folds them into an
// Envelope. Success is false when the submission was rejected or any error
// event occurred.
func Evaluate(ctx context.Context, env environment.Environment, command string) Envelope {
	if strings.TrimSpace(command) == "" {
		return Failure(ErrNoCommand)
	}

	events, err := env.Step(ctx, command)
	if err != nil {
		return Failure(err)
	}

	var out, errOut strings.Builder
	for ev := range events {
		if ev.Kind != environment.KindConsole {
			continue
		}
		if ev.IsError() {
			appendLine(&errOut, ev.Content)
		} else {
			appendLine(&out, ev.Content)
		}
	}

	if errOut.Len() == 0 {
		return Envelope{Success: true, Result: strings.TrimRight(out.String(), "\n")}
	}
	traceback := strings.TrimRight(errOut.String(), "\n")
	return Envelope{
		Result:    strings.TrimRight(out.String(), "\n"),
		Error:     firstLine(traceback),
		Traceback: traceback,
	}
}

// Failure returns the envelope reporting err.
func Failure(err error) Envelope {
	return Envelope{Error: err.Error()}
}

// JSON encodes the envelope on one line.
func (e Envelope) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		// Envelope holds only strings and a bool.
		panic(err)
	}
	return string(data)
}

// appendLine writes content and terminates it with a newline. Interactive
// variants yield lines without terminators, one-shot variants yield raw chunks.
func appendLine(sb *strings.Builder, content string) {
	sb.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		sb.WriteByte('\n')
	}
}

func firstLine(text string) string {
	for line := range strings.Lines(text) {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
