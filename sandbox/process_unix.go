//go:build !windows

package sandbox

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places cmd in a new process group so the whole
// subtree can be signaled together at timeout.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// terminateProcessGroup signals cmd's entire process group.
func terminateProcessGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}
