// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session drives one persistent interpreter process through the marker
// protocol. It implements Environment for every interactive variant.
type Session struct {
	caps   Capabilities
	opts   Options
	id     string
	logger *slog.Logger

	mu    sync.Mutex
	state State
	proc  *processHandle
	// seq identifies the current submission so late callbacks from an
	// earlier one cannot move the state machine.
	seq uint64
}

// NewSession returns an idle session for caps. The interpreter is started by
// Start or by the first Step.
func NewSession(caps Capabilities, opts Options) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Session{
		caps:   caps,
		opts:   opts,
		id:     id,
		logger: opts.Logger.With("session", id, "environment", caps.Name()),
	}
}

// Name returns the variant name.
func (s *Session) Name() string { return s.caps.Name() }

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Capabilities returns the variant driven by the session.
func (s *Session) Capabilities() Capabilities { return s.caps }

// State returns the current execution state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the interpreter ahead of the first submission.
// It is a no-op when the interpreter is already running.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated {
		return ErrSessionTerminated
	}
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.proc != nil {
		return nil
	}

	argv := s.caps.LaunchCommand()
	env, err := buildEnv(os.Environ(), s.opts)
	if err != nil {
		return &StartupError{Command: argv, Cause: err}
	}
	proc, err := startProcess(argv, env, s.opts, s.logger)
	if err != nil {
		return &StartupError{Command: argv, Cause: err}
	}

	s.proc = proc
	s.logger.Debug("interpreter started", "command", argv, "pid", proc.pid(), "pty", s.opts.PTY)
	return nil
}

// Step submits code to the interpreter. Only an idle session accepts a
// submission. A StartupError leaves the session idle so it can be retried.
func (s *Session) Step(ctx context.Context, code string) (iter.Seq[OutputEvent], error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
	case StateTerminated:
		s.mu.Unlock()
		return nil, ErrSessionTerminated
	default:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrSessionBusy, state)
	}
	if err := s.startLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.seq++
	seq := s.seq
	proc := s.proc
	s.state = StateSubmitted
	s.mu.Unlock()

	script := s.caps.Preprocess(code)
	written := make(chan error, 1)
	go func() {
		err := proc.write(script)
		if err == nil {
			s.transition(seq, StateSubmitted, StateStreaming)
		}
		written <- err
	}()

	s.logger.Debug("code submitted", "submission", seq, "bytes", len(script))
	return s.consume(ctx, proc, seq, written), nil
}

// consume returns the single-pass event sequence of one submission.
//
// The first completion sentinel ends the execution. Variants that print the
// sentinel on several streams get a short grace period, restarted by every
// line, to deliver the remaining copies so that late stderr output is not
// attributed to the next submission.
func (s *Session) consume(ctx context.Context, proc *processHandle, seq uint64, written <-chan error) iter.Seq[OutputEvent] {
	var used atomic.Bool
	return func(yield func(OutputEvent) bool) {
		if used.Swap(true) {
			return
		}

		want := completionStreams(s.caps)
		var (
			sentinels int
			grace     *time.Timer
			graceC    <-chan time.Time
		)
		defer func() {
			if grace != nil {
				grace.Stop()
			}
		}()
		for {
			select {
			case <-proc.done:
				return

			case <-ctx.Done():
				s.logger.Debug("submission cancelled", "submission", seq, "error", ctx.Err())
				s.terminateOwn(proc, seq)
				return

			case err := <-written:
				written = nil
				if err != nil {
					s.logger.Debug("write to interpreter failed", "submission", seq, "error", err)
					if s.terminateOwn(proc, seq) {
						yield(ConsoleEvent(FormatError, fmt.Sprintf("failed to send code to interpreter: %v", err)))
					}
					return
				}

			case <-graceC:
				s.logger.Debug("completion sentinel missing on a stream", "submission", seq, "seen", sentinels, "want", want)
				s.complete(seq)
				return

			case line, ok := <-proc.lines:
				if !ok {
					if sentinels > 0 {
						// The script finished and the interpreter exited right after.
						s.complete(seq)
						s.terminateOwn(proc, seq)
						return
					}
					if !s.owns(proc, seq) || isClosed(proc.done) {
						return
					}
					msg := "interpreter exited unexpectedly (" + proc.exitStatus() + ")"
					s.logger.Debug(msg, "submission", seq)
					s.terminateOwn(proc, seq)
					yield(ConsoleEvent(FormatError, msg))
					return
				}

				text := s.caps.CleanLine(line.text)
				if s.caps.DetectCompletion(text) {
					sentinels++
					if prefix := completionPrefix(s.caps, text); prefix != "" {
						if !yield(ConsoleEvent(line.format, prefix)) {
							s.terminateOwn(proc, seq)
							return
						}
					}
					if sentinels >= want {
						s.complete(seq)
						return
					}
					graceC = restartTimer(&grace, completionGrace)
					continue
				}
				if sentinels > 0 {
					graceC = restartTimer(&grace, completionGrace)
				}

				event := ConsoleEvent(line.format, text)
				if n, ok := s.caps.DetectActiveLine(text); ok {
					event = ActiveLineEvent(n)
				}
				if !yield(event) {
					// The interpreter is still executing and its remaining output
					// would be attributed to the next submission.
					s.terminateOwn(proc, seq)
					return
				}
			}
		}
	}
}

// restartTimer (re)arms *t to fire after d and returns its channel.
func restartTimer(t **time.Timer, d time.Duration) <-chan time.Time {
	if *t == nil {
		*t = time.NewTimer(d)
	} else {
		(*t).Reset(d)
	}
	return (*t).C
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// complete moves a finished submission through Completed back to Idle.
func (s *Session) complete(seq uint64) {
	if s.transition(seq, StateSubmitted, StateCompleted) || s.transition(seq, StateStreaming, StateCompleted) {
		s.transition(seq, StateCompleted, StateIdle)
		s.logger.Debug("submission completed", "submission", seq)
	}
}

// transition moves the state from one value to another if seq is the current
// submission and the state still equals from.
func (s *Session) transition(seq uint64, from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq != seq || s.state != from {
		return false
	}
	s.state = to
	return true
}

// detach marks the session terminated and hands its process to the caller.
func (s *Session) detach() *processHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc := s.proc
	s.proc = nil
	s.state = StateTerminated
	return proc
}

// owns reports whether proc is still the session's process and seq its
// current submission.
func (s *Session) owns(proc *processHandle, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc == proc && s.seq == seq
}

// terminateOwn kills proc on behalf of submission seq. It does nothing when
// the session has since been stopped, terminated, reset or handed a newer
// submission, so a stale consumer cannot disturb the session's current
// process. It reports whether it killed proc.
func (s *Session) terminateOwn(proc *processHandle, seq uint64) bool {
	s.mu.Lock()
	if s.proc != proc || s.seq != seq {
		s.mu.Unlock()
		return false
	}
	s.proc = nil
	s.state = StateTerminated
	s.mu.Unlock()

	s.kill(proc)
	return true
}

// Stop closes the interpreter's input and waits for it to exit on its own.
// Output still in flight is delivered to a consumer that is draining the
// current sequence. If the interpreter does not exit within StopTimeout it
// is killed.
func (s *Session) Stop() {
	proc := s.detach()
	if proc == nil {
		return
	}

	proc.closeStdin()
	if proc.join(s.opts.StopTimeout) {
		s.logger.Debug("interpreter stopped", "pid", proc.pid())
		return
	}
	s.logger.Debug("interpreter ignored end of input, killing", "pid", proc.pid(), "timeout", s.opts.StopTimeout)
	s.kill(proc)
}

// Terminate kills the interpreter and its process group, cancels the
// readers and waits for them to return. It is idempotent and safe to call
// from any goroutine.
func (s *Session) Terminate() {
	proc := s.detach()
	if proc == nil {
		return
	}
	s.kill(proc)
}

func (s *Session) kill(proc *processHandle) {
	proc.kill()
	if !proc.join(s.opts.TerminateTimeout) {
		s.logger.Warn("interpreter cleanup did not finish", "pid", proc.pid(), "timeout", s.opts.TerminateTimeout)
		return
	}
	s.logger.Debug("interpreter terminated", "pid", proc.pid())
}

// Reset makes a terminated session usable again. The next Step starts a new
// interpreter process.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated && s.proc == nil {
		s.state = StateIdle
	}
}
