// SPDX-License-Identifier: MPL-2.0

//go:build unix

package environment

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup places the interpreter in its own process group so that
// Terminate also reaches the commands it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(proc *os.Process) error {
	err := unix.Kill(-proc.Pid, unix.SIGKILL)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ESRCH) {
		// Group already gone; make sure the leader is too.
		return proc.Kill()
	}
	return errors.Join(err, proc.Kill())
}
