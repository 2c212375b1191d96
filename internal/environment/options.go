// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"log/slog"
	"time"

	"interpd/internal/marker"
)

const (
	// DefaultQueueSize is the capacity of the merged output channel.
	DefaultQueueSize = 256
	// DefaultStopTimeout bounds how long Stop waits for the interpreter to exit on its own.
	DefaultStopTimeout = 5 * time.Second
	// DefaultTerminateTimeout bounds how long Terminate waits for readers to finish after a kill.
	DefaultTerminateTimeout = 2 * time.Second

	// drainTimeout bounds how long readers may keep a pipe open after the
	// interpreter exited, e.g. because a background job inherited it.
	drainTimeout = 500 * time.Millisecond

	// completionGrace bounds how long the consume loop waits, after the first
	// completion sentinel, for the copies emitted on the other streams. A
	// script that redirected a stream never delivers its copy.
	completionGrace = 200 * time.Millisecond
)

// Options configures an environment instance. The zero value is usable.
type Options struct {
	// Executable overrides the interpreter binary.
	Executable string
	// Args overrides the variant's default interpreter arguments when non-nil.
	Args []string
	// Dir is the working directory of the interpreter and the base for relative EnvFiles.
	Dir string
	// Env holds variables set last, overriding everything else.
	Env map[string]string
	// EnvFiles are dotenv files loaded in order. A '?' suffix marks a file optional.
	EnvFiles []string
	// Delimiters overrides the marker wire format. Empty fields use marker.Default.
	Delimiters marker.Delimiters
	// PTY attaches the interpreter's standard output to a pseudo-terminal.
	PTY bool
	// QueueSize is the capacity of the merged output channel.
	QueueSize int
	// StopTimeout bounds Stop before it falls back to Terminate.
	StopTimeout time.Duration
	// TerminateTimeout bounds how long Terminate waits for cleanup.
	TerminateTimeout time.Duration
	// TempDir holds the one-shot variant's script files. Empty means os.TempDir().
	TempDir string
	// Logger receives debug and cleanup records. Nil means slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	o.Delimiters = o.Delimiters.WithDefaults()
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.TerminateTimeout <= 0 {
		o.TerminateTimeout = DefaultTerminateTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// argsOr returns o.Args when set, defaults otherwise.
func (o Options) argsOr(defaults ...string) []string {
	if o.Args != nil {
		return o.Args
	}
	return defaults
}
