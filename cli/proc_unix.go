//go:build !windows

package cli

import (
	"os/exec"
	"syscall"
)

// shellCommand returns the arguments that run line through the system shell.
func shellCommand(line string) (string, []string) {
	return "sh", []string{"-c", line}
}

// killProcessGroup makes cancellation kill the whole process tree of cmd, as
// the framework is usually started through wrappers such as npx.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
