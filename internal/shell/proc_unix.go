// SPDX-License-Identifier: MPL-2.0

//go:build unix

package shell

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts bash in its own process group so cancellation
// also kills the build tools it started.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
