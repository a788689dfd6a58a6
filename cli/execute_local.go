package cli

// This file contains local execution of the test framework and of the
// suite's pre-exec commands.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/cyreport/cyreport/model"
)

// PreExecMetricName is the asset the pre-exec timings are written to.
const PreExecMetricName = "pre-exec.json"

// waitDelay bounds how long output copying may outlive a killed process.
const waitDelay = 10 * time.Second

// PreExecStep is the record of one pre-exec command.
type PreExecStep struct {
	Command  string  `json:"command"`
	Duration float64 `json:"duration"`
	ExitCode int     `json:"exitCode"`
	TimedOut bool    `json:"timedOut,omitempty"`
}

// timeoutMessage is reported as the failure of a run that exceeded timeout.
func timeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Test timed out after %s seconds", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
}

// executeFramework runs the framework command line in dir and returns the
// result of the process. A run exceeding timeout is killed and reported as
// failed. The output is shown and also written to console.
func (a *App) executeFramework(ctx context.Context, argv, env []string, dir string, timeout time.Duration, console io.Writer) *model.RunResult {
	result := &model.RunResult{StartTime: time.Now()}

	a.logger.Debug().
		Str("command", commandString(argv)).
		Str("dir", dir).
		Dur("timeout", timeout).
		Msg("Starting framework execution")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	// Show the output and keep it for the console log
	cmd.Stdout = io.MultiWriter(os.Stdout, console)
	cmd.Stderr = io.MultiWriter(os.Stderr, console)

	err := cmd.Run()
	result.EndTime = time.Now()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		msg := timeoutMessage(timeout)
		a.logger.Error().Dur("timeout", timeout).Msg(msg)
		result.Status = model.RunStatusFailed
		result.Failures = 1
		result.Message = msg
		result.TimedOut = true
		result.ExitCode = 1
		return result
	}

	if err != nil {
		// Test failures are expected to return non-zero exit codes
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			a.logger.Info().
				Int("exit_code", exitErr.ExitCode()).
				Msg("Tests completed with failures")
			result.ExitCode = exitErr.ExitCode()
			return result
		}

		a.logger.Error().Err(err).Msg("Failed to execute framework")
		result.Status = model.RunStatusFailed
		result.Failures = 1
		result.Message = fmt.Sprintf("failed to execute framework: %v", err)
		result.ExitCode = 1
		return result
	}

	a.logger.Info().Msg("Tests completed successfully")
	return result
}

// runPreExec runs the suite's pre-exec commands in order, each bounded by
// timeout, and stops at the first failure. The timings of all attempted
// commands are returned as a metric, also on failure.
func (a *App) runPreExec(ctx context.Context, commands []string, env []string, dir string, timeout time.Duration, console io.Writer) (model.Metric, error) {
	metric := model.Metric{Name: PreExecMetricName}
	var steps []PreExecStep
	for _, line := range commands {
		step, err := a.runPreExecCommand(ctx, line, env, dir, timeout, console)
		steps = append(steps, step)
		if err != nil {
			metric.Data = steps
			return metric, err
		}
	}

	metric.Data = steps
	return metric, nil
}

func (a *App) runPreExecCommand(ctx context.Context, line string, env []string, dir string, timeout time.Duration, console io.Writer) (PreExecStep, error) {
	step := PreExecStep{Command: line}
	a.logger.Info().Str("command", line).Msg("Running pre-exec command")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := shellCommand(line)
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)
	cmd.Stdout = io.MultiWriter(os.Stdout, console)
	cmd.Stderr = io.MultiWriter(os.Stderr, console)

	start := time.Now()
	err := cmd.Run()
	step.Duration = time.Since(start).Seconds()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		step.TimedOut = true
		step.ExitCode = -1
		return step, fmt.Errorf("pre-exec command %q timed out after %s", line, timeout)
	}
	if err != nil {
		step.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			step.ExitCode = exitErr.ExitCode()
		}
		return step, fmt.Errorf("pre-exec command %q failed: %w", line, err)
	}
	return step, nil
}
