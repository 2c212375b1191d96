// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"os/exec"
	goruntime "runtime"

	"interpd/internal/marker"
)

// PowerShell is the PowerShell variant. It reads the script from stdin with
// profiles and execution policy disabled.
type PowerShell struct {
	markerProtocol
	opts Options
}

// NewPowerShell returns the PowerShell capabilities for opts.
func NewPowerShell(opts Options) *PowerShell {
	return &PowerShell{
		markerProtocol: newMarkerProtocol(marker.PowerShell, opts.Delimiters),
		opts:           opts,
	}
}

// NewPowerShellSession returns a session driving PowerShell.
func NewPowerShellSession(opts Options) *Session {
	return NewSession(NewPowerShell(opts), opts)
}

// Name returns "powershell".
func (p *PowerShell) Name() string { return "powershell" }

// Aliases returns the registry keys of the variant.
func (p *PowerShell) Aliases() []string { return []string{"powershell", "ps1", "pwsh"} }

// LaunchCommand returns pwsh (or Windows PowerShell) in non-interactive stdin mode.
func (p *PowerShell) LaunchCommand() []string {
	exe := p.opts.Executable
	if exe == "" {
		exe = findPowerShell()
	}
	return append([]string{exe}, p.opts.argsOr(
		"-NoLogo", "-NoProfile", "-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-Command", "-",
	)...)
}

func findPowerShell() string {
	if path, err := exec.LookPath("pwsh"); err == nil {
		return path
	}
	if goruntime.GOOS == "windows" {
		return "powershell.exe"
	}
	return "pwsh"
}
