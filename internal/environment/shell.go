// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"os/exec"
	"path/filepath"
	"strings"

	"interpd/internal/marker"
)

// Shell is the POSIX shell variant. It prefers bash and falls back to sh.
type Shell struct {
	markerProtocol
	opts Options
}

// NewShell returns the shell capabilities for opts.
func NewShell(opts Options) *Shell {
	return &Shell{
		markerProtocol: newMarkerProtocol(marker.Shell, opts.Delimiters),
		opts:           opts,
	}
}

// NewShellSession returns a session driving a shell interpreter.
func NewShellSession(opts Options) *Session {
	return NewSession(NewShell(opts), opts)
}

// Name returns "shell".
func (s *Shell) Name() string { return "shell" }

// Aliases returns the registry keys of the variant.
func (s *Shell) Aliases() []string { return []string{"shell", "bash", "sh", "zsh"} }

// LaunchCommand returns the shell with startup files disabled.
func (s *Shell) LaunchCommand() []string {
	shell := s.opts.Executable
	if shell == "" {
		shell = findShell()
	}
	return append([]string{shell}, s.opts.argsOr(shellArgs(shell)...)...)
}

// findShell returns the first of bash and sh found on PATH.
// The user's $SHELL is ignored so startup does not depend on the host account.
func findShell() string {
	for _, name := range []string{"bash", "sh"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "sh"
}

// shellArgs returns the flags that keep a shell from sourcing profiles and rc files.
func shellArgs(shell string) []string {
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(shell)), ".exe")
	switch base {
	case "bash":
		return []string{"--noprofile", "--norc"}
	case "zsh":
		return []string{"-f"}
	default:
		return nil
	}
}
