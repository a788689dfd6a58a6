// Package diag collects the non-fatal problems of the reporting pipeline.
//
// Steps of the pipeline never abort the whole run. Instead they record a
// Diagnostic, which is logged the moment it is recorded and kept so the
// caller can inspect or summarize what went wrong.
package diag

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Severity of a diagnostic.
type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic describes one problem encountered by a pipeline step.
type Diagnostic struct {
	Severity Severity
	// Op names the step, e.g. "merge-junit" or "upload-assets".
	Op string
	// Path is the file the problem relates to, if any.
	Path string
	Err  error
}

func (d Diagnostic) Error() string {
	if d.Path != "" {
		return fmt.Sprintf("%s %s: %v", d.Op, d.Path, d.Err)
	}
	return fmt.Sprintf("%s: %v", d.Op, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Diagnostics is an ordered collection of diagnostics. The zero value is
// usable and logs nowhere.
type Diagnostics struct {
	logger zerolog.Logger
	items  []Diagnostic
}

// New returns a collector that logs every recorded diagnostic to logger.
func New(logger zerolog.Logger) *Diagnostics {
	return &Diagnostics{logger: logger}
}

// Warn records a warning.
func (d *Diagnostics) Warn(op, path string, err error) {
	d.add(Diagnostic{Severity: SeverityWarning, Op: op, Path: path, Err: err})
}

// Error records an error.
func (d *Diagnostics) Error(op, path string, err error) {
	d.add(Diagnostic{Severity: SeverityError, Op: op, Path: path, Err: err})
}

func (d *Diagnostics) add(item Diagnostic) {
	var ev *zerolog.Event
	if item.Severity == SeverityError {
		ev = d.logger.Error()
	} else {
		ev = d.logger.Warn()
	}
	if item.Path != "" {
		ev = ev.Str("file", item.Path)
	}
	ev.Err(item.Err).Str("op", item.Op).Msg("Reporting step degraded")

	d.items = append(d.items, item)
}

// Merge appends all diagnostics of other without logging them again.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.items = append(d.items, other.items...)
}

// Items returns the recorded diagnostics in order.
func (d *Diagnostics) Items() []Diagnostic {
	return d.items
}

// Len returns the number of recorded diagnostics.
func (d *Diagnostics) Len() int {
	return len(d.items)
}

// HasErrors reports whether any diagnostic has error severity.
func (d *Diagnostics) HasErrors() bool {
	for _, item := range d.items {
		if item.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err aggregates all recorded diagnostics into one error, or nil if nothing
// was recorded.
func (d *Diagnostics) Err() error {
	var errs *multierror.Error
	for _, item := range d.items {
		errs = multierror.Append(errs, item)
	}
	return errs.ErrorOrNil()
}
