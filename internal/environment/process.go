// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

type (
	// rawLine is one line read from an interpreter stream, without its line ending.
	rawLine struct {
		format Format
		text   string
	}

	// processHandle owns an interpreter process, its stdin, the read ends of
	// its output streams and the two reader goroutines draining them.
	processHandle struct {
		cmd     *exec.Cmd
		stdin   io.WriteCloser
		outputs []*os.File
		logger  *slog.Logger

		// lines is the merged queue. It is closed once both readers returned
		// after the process exited.
		lines chan rawLine
		// done is closed by kill and cancels the readers.
		done chan struct{}
		// exited is closed after cmd.Wait returned; waitErr is valid afterwards.
		exited  chan struct{}
		waitErr error
		// finished is closed once the process was reaped and both readers returned.
		finished chan struct{}

		writeMu    sync.Mutex
		killOnce   sync.Once
		stdinOnce  sync.Once
		outputOnce sync.Once
	}
)

// startProcess spawns argv and starts its reader and monitor goroutines.
func startProcess(argv, env []string, opts Options, logger *slog.Logger) (*processHandle, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty launch command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = opts.Dir
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	// Output streams use os.Pipe/pty files rather than StdoutPipe so that
	// cmd.Wait never closes them underneath the readers.
	var parentEnds, childEnds []*os.File
	closeAll := func() {
		for _, f := range append(parentEnds, childEnds...) {
			_ = f.Close()
		}
		_ = stdin.Close()
	}

	var stdoutR, stdoutW *os.File
	if opts.PTY {
		stdoutR, stdoutW, err = pty.Open()
	} else {
		stdoutR, stdoutW, err = os.Pipe()
	}
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to create stdout stream: %w", err)
	}
	parentEnds = append(parentEnds, stdoutR)
	childEnds = append(childEnds, stdoutW)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	parentEnds = append(parentEnds, stderrR)
	childEnds = append(childEnds, stderrW)

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err = cmd.Start(); err != nil {
		closeAll()
		return nil, err
	}
	for _, f := range childEnds {
		_ = f.Close()
	}

	p := &processHandle{
		cmd:      cmd,
		stdin:    stdin,
		outputs:  parentEnds,
		logger:   logger,
		lines:    make(chan rawLine, opts.QueueSize),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		finished: make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Go(func() { p.read(stdoutR, FormatOutput) })
	readers.Go(func() { p.read(stderrR, FormatError) })
	go p.monitor(&readers)

	return p, nil
}

// pid returns the interpreter's process ID.
func (p *processHandle) pid() int {
	return p.cmd.Process.Pid
}

// read moves lines from one stream onto the merged queue until the stream
// ends or the handle is killed.
func (p *processHandle) read(r io.Reader, format Format) {
	br := bufio.NewReader(r)
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			select {
			case p.lines <- rawLine{format: format, text: strings.TrimRight(text, "\r\n")}:
			case <-p.done:
				return
			}
		}
		if err != nil {
			// io.EOF for pipes, EIO for a pty whose slave side closed,
			// os.ErrClosed after kill.
			return
		}
	}
}

// monitor reaps the process, then waits for the readers to drain what the
// process wrote before closing the queue.
func (p *processHandle) monitor(readers *sync.WaitGroup) {
	p.waitErr = p.cmd.Wait()
	close(p.exited)

	readersDone := make(chan struct{})
	go func() {
		readers.Wait()
		close(readersDone)
	}()

	select {
	case <-readersDone:
	case <-time.After(drainTimeout):
		// A descendant still holds the write ends open.
		p.closeOutputs()
		<-readersDone
	}
	p.closeOutputs()
	close(p.lines)
	close(p.finished)
}

// write sends script to the interpreter's stdin.
func (p *processHandle) write(script string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_, err := io.WriteString(p.stdin, script)
	return err
}

// closeStdin signals end of input to the interpreter.
func (p *processHandle) closeStdin() {
	p.stdinOnce.Do(func() {
		if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.logger.Debug("failed to close interpreter stdin", "error", err)
		}
	})
}

func (p *processHandle) closeOutputs() {
	p.outputOnce.Do(func() {
		for _, f := range p.outputs {
			_ = f.Close()
		}
	})
}

// kill cancels the readers, kills the whole process group and closes every pipe.
func (p *processHandle) kill() {
	p.killOnce.Do(func() {
		close(p.done)
		if err := killProcessGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Debug("failed to kill interpreter", "pid", p.pid(), "error", err)
		}
		p.closeStdin()
		p.closeOutputs()
	})
}

// join waits up to timeout for the process to be reaped and the readers to return.
func (p *processHandle) join(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.finished:
		return true
	case <-timer.C:
		return false
	}
}

// exitStatus describes how the process ended. It must only be called after exited is closed.
func (p *processHandle) exitStatus() string {
	if p.waitErr == nil {
		return "exit status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ProcessState.String()
	}
	return p.waitErr.Error()
}
