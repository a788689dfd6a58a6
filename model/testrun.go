package model

import (
	"reflect"
	"time"
)

// RunStatusFailed marks a run that did not produce a regular result, for
// example because the framework timed out or could not be started.
const RunStatusFailed = "failed"

// SpecResult represents the outcome of a single spec file
type SpecResult struct {
	// Spec file path, used as a stable key for its artifacts
	Spec string `json:"spec"`
	// Number of tests in the spec
	Tests int `json:"tests"`
	// Number of failed tests
	Failures int `json:"failures"`
	// Time the spec took
	Duration time.Duration `json:"duration"`
	// Artifact paths the framework produced for this spec
	Artifacts []string `json:"artifacts,omitempty"`
}

// Passed reports whether the spec had no failures.
func (s SpecResult) Passed() bool {
	return s.Failures == 0
}

// RunResult is the structured outcome of one framework execution
type RunResult struct {
	// Status is RunStatusFailed for synthetic results, empty otherwise
	Status string `json:"status,omitempty"`
	// Failures reported for a failed run (1 for timeouts)
	Failures int `json:"failures,omitempty"`
	// Sum of failed tests across all specs
	TotalFailed int `json:"total_failed"`
	// Human readable reason for a failed run
	Message string `json:"message,omitempty"`
	// Whether the run was stopped by the execution timeout
	TimedOut bool `json:"timed_out,omitempty"`
	// Exit code of the framework process
	ExitCode int `json:"exit_code"`
	// Per-spec results in discovery order
	Specs []SpecResult `json:"specs,omitempty"`
	// Start and end of the framework execution
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Failed reports whether the run is a synthetic failure rather than a
// regular result.
func (r *RunResult) Failed() bool {
	return r.Status == RunStatusFailed
}

// FailureCount returns the number of failures to report for this run.
func (r *RunResult) FailureCount() int {
	if r.Failed() {
		if r.Failures == 0 {
			return 1
		}
		return r.Failures
	}
	if r.TotalFailed == 0 && r.ExitCode != 0 {
		// The framework failed without reporting a failed test.
		return 1
	}
	return r.TotalFailed
}

// Passed reports whether the run succeeded without any failed test.
func (r *RunResult) Passed() bool {
	return r.FailureCount() == 0
}

// SpecNames returns the spec keys in order.
func (r *RunResult) SpecNames() []string {
	names := make([]string, 0, len(r.Specs))
	for _, s := range r.Specs {
		names = append(names, s.Spec)
	}
	return names
}

// Metric is a named, opaque payload uploaded as an additional asset
type Metric struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Empty reports whether the metric carries no data. Empty metrics are not
// written to disk.
func (m Metric) Empty() bool {
	if m.Data == nil {
		return true
	}
	v := reflect.ValueOf(m.Data)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Job is the remote reporting service's handle for one suite execution
type Job struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
