// Package video inspects and combines the per-spec videos recorded by the
// test framework.
package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// Runner executes media tools. It returns the standard output of the
// command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs media tools as local processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if lines := strings.Split(msg, "\n"); len(lines) > 0 && lines[len(lines)-1] != "" {
			msg = lines[len(lines)-1]
		}
		return stdout.Bytes(), fmt.Errorf("%s failed: %w (stderr: %s)", name, err, msg)
	}

	return stdout.Bytes(), nil
}

// CommandString renders a command line with shell escaping, for logging.
func CommandString(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellescape.Quote(name))
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}
