// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// PythonSpec runs submissions with python3 (or python).
	PythonSpec = OneShotSpec{
		Name:        "python",
		Aliases:     []string{"python", "py"},
		Executables: []string{"python3", "python"},
		Extension:   ".py",
	}

	// JavaScriptSpec runs submissions with node.
	JavaScriptSpec = OneShotSpec{
		Name:        "javascript",
		Aliases:     []string{"javascript", "js", "node"},
		Executables: []string{"node"},
		Extension:   ".js",
	}
)

type (
	// OneShotSpec describes an interpreter run once per submission against a script file.
	OneShotSpec struct {
		Name    string
		Aliases []string
		// Executables are tried in order on PATH when Options.Executable is empty.
		Executables []string
		// Args precede the script path.
		Args []string
		// Extension of the temporary script file, including the dot.
		Extension string
	}

	// OneShot is the fallback variant for interpreters without a usable
	// persistent stdin mode. It produces no active-line events.
	OneShot struct {
		spec   OneShotSpec
		opts   Options
		logger *slog.Logger

		mu     sync.Mutex
		state  State
		seq    uint64
		cancel context.CancelFunc
	}
)

// NewOneShot returns a one-shot environment for spec.
func NewOneShot(spec OneShotSpec, opts Options) *OneShot {
	opts = opts.withDefaults()
	return &OneShot{
		spec:   spec,
		opts:   opts,
		logger: opts.Logger.With("environment", spec.Name),
	}
}

// Name returns the variant name.
func (o *OneShot) Name() string { return o.spec.Name }

// Aliases returns the registry keys of the variant.
func (o *OneShot) Aliases() []string { return o.spec.Aliases }

// LaunchCommand returns the interpreter argv without the script path.
func (o *OneShot) LaunchCommand() []string {
	exe := o.opts.Executable
	if exe == "" {
		exe = o.findExecutable()
	}
	return append([]string{exe}, o.opts.argsOr(o.spec.Args...)...)
}

func (o *OneShot) findExecutable() string {
	for _, name := range o.spec.Executables {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	if len(o.spec.Executables) > 0 {
		return o.spec.Executables[0]
	}
	return ""
}

// Preprocess returns code unchanged.
func (o *OneShot) Preprocess(code string) string { return code }

// CleanLine strips colour escape sequences.
func (o *OneShot) CleanLine(line string) string { return CleanLine(line) }

// DetectActiveLine never finds a marker.
func (o *OneShot) DetectActiveLine(string) (int, bool) { return 0, false }

// DetectCompletion always reports false; completion is process exit.
func (o *OneShot) DetectCompletion(string) bool { return false }

// State returns the current execution state.
func (o *OneShot) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Step validates that the interpreter exists and returns a sequence that,
// when iterated, runs code once and yields its standard output and then its
// standard error (or the failure), each only when non-empty.
func (o *OneShot) Step(ctx context.Context, code string) (iter.Seq[OutputEvent], error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateIdle:
	case StateTerminated:
		return nil, ErrSessionTerminated
	default:
		return nil, fmt.Errorf("%w (state %s)", ErrSessionBusy, o.state)
	}

	argv := o.LaunchCommand()
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, &StartupError{Command: argv, Cause: err}
	}
	env, err := buildEnv(os.Environ(), o.opts)
	if err != nil {
		return nil, &StartupError{Command: argv, Cause: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.seq++
	seq := o.seq
	o.cancel = cancel
	o.state = StateSubmitted

	var used atomic.Bool
	return func(yield func(OutputEvent) bool) {
		if used.Swap(true) {
			return
		}
		defer o.finish(seq, cancel)

		stdout, stderr := o.run(runCtx, seq, argv, env, code)
		if stdout != "" && !yield(ConsoleEvent(FormatOutput, stdout)) {
			return
		}
		if stderr != "" {
			yield(ConsoleEvent(FormatError, stderr))
		}
	}, nil
}

// run executes code from a temporary script file that is removed on return.
func (o *OneShot) run(ctx context.Context, seq uint64, argv, env []string, code string) (string, string) {
	path, err := writeTempScript(o.opts.TempDir, o.spec.Extension, code)
	if err != nil {
		return "", fmt.Sprintf("failed to write temporary script: %v", err)
	}
	defer o.removeTempScript(path)

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:len(argv):len(argv)], path)...)
	cmd.Env = env
	cmd.Dir = o.opts.Dir
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd.Process) }
	cmd.WaitDelay = o.opts.TerminateTimeout

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err = cmd.Start(); err != nil {
		return "", err.Error()
	}
	o.transition(seq, StateSubmitted, StateStreaming)
	o.logger.Debug("script started", "pid", cmd.Process.Pid, "script", path)

	err = cmd.Wait()
	errText := stderr.String()
	switch {
	case ctx.Err() != nil:
		errText = joinLines(errText, fmt.Sprintf("execution cancelled: %v", context.Cause(ctx)))
	case err != nil:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			errText = joinLines(errText, err.Error())
		}
	}
	return stdout.String(), errText
}

func (o *OneShot) finish(seq uint64, cancel context.CancelFunc) {
	cancel()
	if o.transition(seq, StateStreaming, StateCompleted) || o.transition(seq, StateSubmitted, StateCompleted) {
		o.transition(seq, StateCompleted, StateIdle)
	}

	o.mu.Lock()
	if o.seq == seq {
		o.cancel = nil
	}
	o.mu.Unlock()
}

func (o *OneShot) transition(seq uint64, from, to State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.seq != seq || o.state != from {
		return false
	}
	o.state = to
	return true
}

// Stop rejects further submissions. A script already running is allowed to finish.
func (o *OneShot) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateTerminated
}

// Terminate rejects further submissions and kills a running script.
func (o *OneShot) Terminate() {
	o.mu.Lock()
	cancel := o.cancel
	o.state = StateTerminated
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reset makes a terminated environment usable again.
func (o *OneShot) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateTerminated {
		o.state = StateIdle
	}
}

func writeTempScript(dir, ext, code string) (string, error) {
	f, err := os.CreateTemp(dir, "interpd-*"+ext)
	if err != nil {
		return "", err
	}
	path := f.Name()

	_, writeErr := f.WriteString(code)
	closeErr := f.Close()
	if err = errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (o *OneShot) removeTempScript(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("failed to remove temporary script", "path", path, "error", err)
	}
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	return strings.TrimRight(a, "\n") + "\n" + b
}
