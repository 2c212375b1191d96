// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"interpd/internal/marker"
)

// VirtualShellArgs are the arguments that make the interpd binary serve an
// embedded shell over its standard streams.
var VirtualShellArgs = []string{"internal", "virtual-shell"}

// Virtual is the embedded-shell variant. The interpreter is the interpd
// binary itself running ServeVirtualShell, so it behaves the same on every
// host regardless of which shells are installed.
type Virtual struct {
	markerProtocol
	opts Options
}

// NewVirtual returns the virtual shell capabilities for opts.
func NewVirtual(opts Options) *Virtual {
	return &Virtual{
		markerProtocol: newMarkerProtocol(marker.Shell, opts.Delimiters),
		opts:           opts,
	}
}

// NewVirtualSession returns a session driving the embedded shell.
func NewVirtualSession(opts Options) *Session {
	return NewSession(NewVirtual(opts), opts)
}

// Name returns "virtual".
func (v *Virtual) Name() string { return "virtual" }

// Aliases returns the registry keys of the variant.
func (v *Virtual) Aliases() []string { return []string{"virtual", "vsh"} }

// LaunchCommand returns the current executable with VirtualShellArgs.
func (v *Virtual) LaunchCommand() []string {
	exe := v.opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			exe = os.Args[0]
		}
	}
	return append([]string{exe}, v.opts.argsOr(VirtualShellArgs...)...)
}

// ServeVirtualShell reads shell code from in and runs every complete
// statement as soon as it has been read, on one interpreter whose variables
// and functions persist across statements. Syntax errors are reported on
// errOut and the offending input is discarded. Commands get no standard
// input, so they cannot consume the code that follows them.
//
// It returns the shell's exit status when the code calls exit or in reaches EOF.
func ServeVirtualShell(ctx context.Context, in io.Reader, out, errOut io.Writer) int {
	runner, err := interp.New(
		interp.StdIO(nil, out, errOut),
		interp.Env(expand.ListEnviron(os.Environ()...)),
	)
	if err != nil {
		fmt.Fprintf(errOut, "virtual-shell: %v\n", err)
		return 1
	}

	parser := syntax.NewParser()
	reader := bufio.NewReader(in)
	var (
		pending strings.Builder
		status  int
	)
	for {
		line, readErr := reader.ReadString('\n')
		pending.WriteString(line)

		eof := readErr != nil
		if eof && !errors.Is(readErr, io.EOF) {
			fmt.Fprintf(errOut, "virtual-shell: %v\n", readErr)
		}
		if strings.TrimSpace(pending.String()) == "" {
			pending.Reset()
			if eof {
				return status
			}
			continue
		}

		file, parseErr := parser.Parse(strings.NewReader(pending.String()), "")
		switch {
		case parseErr != nil && syntax.IsIncomplete(parseErr) && !eof:
			continue
		case parseErr != nil:
			fmt.Fprintf(errOut, "virtual-shell: %v\n", parseErr)
			status = 2
		default:
			for _, stmt := range file.Stmts {
				runErr := runner.Run(ctx, stmt)
				status = exitCode(runErr)
				if runErr != nil && !isExitStatus(runErr) {
					fmt.Fprintf(errOut, "virtual-shell: %v\n", runErr)
				}
				if runner.Exited() {
					return status
				}
			}
		}
		pending.Reset()
		if eof {
			return status
		}
	}
}

// exitCode converts an interp.Runner error into a shell exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return int(status)
	}
	return 1
}

func isExitStatus(err error) bool {
	var status interp.ExitStatus
	return errors.As(err, &status)
}
