// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package environment

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(proc *os.Process) error {
	return proc.Kill()
}
