//go:build windows

package cli

import (
	"os/exec"
	"strconv"
)

func shellCommand(line string) (string, []string) {
	return "cmd", []string{"/C", line}
}

func killProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
	}
}
