// Package reporting publishes the results of a suite run to the cloud
// test-reporting service.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyreport/cyreport/diag"
	"github.com/cyreport/cyreport/model"
)

// Framework is the framework name reported with every job.
const Framework = "cypress"

const (
	opCreateJob    = "create-job"
	opUploadAssets = "upload-assets"
	opUpdateJob    = "update-job"
	opStatusFile   = "status-file"
)

// JobRequest registers a suite run with the reporting service.
type JobRequest struct {
	Name             string    `json:"name"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Framework        string    `json:"framework"`
	FrameworkVersion string    `json:"frameworkVersion"`
	Passed           bool      `json:"passed"`
	Tags             []string  `json:"tags,omitempty"`
	Build            string    `json:"build,omitempty"`
	BrowserName      string    `json:"browserName"`
	BrowserVersion   string    `json:"browserVersion"`
	PlatformName     string    `json:"platformName"`
}

// JobStatus is the final state of a job.
type JobStatus struct {
	Passed bool `json:"passed"`
}

// UploadResult lists the outcome of an asset upload. A non-nil result may
// still carry per-file errors.
type UploadResult struct {
	Uploaded []string `json:"uploaded"`
	Errors   []string `json:"errors"`
}

// JobService is the remote reporting service.
type JobService interface {
	CreateJob(ctx context.Context, req JobRequest) (*model.Job, error)
	UploadAssets(ctx context.Context, jobID string, files []string) (*UploadResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
}

// RunMetadata describes the suite run being published.
type RunMetadata struct {
	SuiteName        string
	BrowserName      string
	BrowserVersion   string
	PlatformName     string
	FrameworkVersion string
	Region           string
	Tags             []string
	Build            string
	StartTime        time.Time
	EndTime          time.Time
}

// Outcome of a publish.
type Outcome struct {
	// Job is nil when no job could be created.
	Job         *model.Job
	Succeeded   bool
	Diagnostics *diag.Diagnostics
}

// Publisher creates a job, uploads the assets and records the outcome.
type Publisher struct {
	logger  zerolog.Logger
	service JobService
	status  StatusFile
	stdout  io.Writer
}

// NewPublisher returns a Publisher writing its status to statusPath.
func NewPublisher(logger zerolog.Logger, service JobService, statusPath string) *Publisher {
	if statusPath == "" {
		statusPath = DefaultStatusFile
	}
	return &Publisher{
		logger:  logger,
		service: service,
		status:  StatusFile{Path: statusPath},
		stdout:  os.Stdout,
	}
}

// Publish reports one suite run. Reporting is best effort: problems are
// logged and collected in the outcome, never returned.
func (p *Publisher) Publish(ctx context.Context, meta RunMetadata, assets []string, failures int) Outcome {
	out := Outcome{Diagnostics: diag.New(p.logger)}

	frameworkVersion := meta.FrameworkVersion
	if frameworkVersion == "" {
		frameworkVersion = "0.0.0"
	}
	passed := failures == 0

	job, err := p.service.CreateJob(ctx, JobRequest{
		Name:             meta.SuiteName,
		StartTime:        meta.StartTime,
		EndTime:          meta.EndTime,
		Framework:        Framework,
		FrameworkVersion: frameworkVersion,
		Passed:           passed,
		Tags:             meta.Tags,
		Build:            meta.Build,
		BrowserName:      meta.BrowserName,
		BrowserVersion:   meta.BrowserVersion,
		PlatformName:     meta.PlatformName,
	})
	if err == nil && (job == nil || job.ID == "") {
		err = errors.New("reporting service returned no job id")
	}
	if err != nil {
		out.Diagnostics.Error(opCreateJob, "", fmt.Errorf("failed to report tests, assets won't be uploaded: %w", err))
		p.writeStatus(out.Diagnostics, map[string]any{"reportingSucceeded": false})
		return out
	}
	out.Job = job
	p.logger.Debug().Str("job", job.ID).Msg("Created job")

	res, err := p.service.UploadAssets(ctx, job.ID, assets)
	if err != nil {
		out.Diagnostics.Error(opUploadAssets, "", fmt.Errorf("failed to upload assets: %w", err))
	} else if res != nil {
		for _, uploadErr := range res.Errors {
			out.Diagnostics.Error(opUploadAssets, "", fmt.Errorf("failed to upload asset: %s", uploadErr))
		}
		p.logger.Debug().Str("job", job.ID).Int("uploaded", len(res.Uploaded)).Msg("Uploaded assets")
	}

	if err := p.service.UpdateJobStatus(ctx, job.ID, JobStatus{Passed: passed}); err != nil {
		out.Diagnostics.Error(opUpdateJob, "", fmt.Errorf("failed to update job status: %w", err))
	}

	fmt.Fprintf(p.stdout, "\nOpen job details page: %s\n\n", job.URL)
	out.Succeeded = true
	p.writeStatus(out.Diagnostics, map[string]any{
		"jobDetailsUrl":      job.URL,
		"reportingSucceeded": true,
	})
	return out
}

func (p *Publisher) writeStatus(diags *diag.Diagnostics, values map[string]any) {
	if err := p.status.Update(values); err != nil {
		diags.Warn(opStatusFile, p.status.Path, err)
	}
}

// BrowserVersion returns the installed version of browserName, as announced
// by the execution image through FF_VER and CHROME_VER.
func BrowserVersion(browserName string, getenv func(string) string) string {
	switch strings.ToLower(browserName) {
	case "firefox":
		return getenv("FF_VER")
	case "chrome":
		return getenv("CHROME_VER")
	}
	return "*"
}

// ImagePlatformName returns the platform of the execution image,
// IMAGE_NAME:IMAGE_TAG.
func ImagePlatformName(getenv func(string) string) string {
	return getenv("IMAGE_NAME") + ":" + getenv("IMAGE_TAG")
}
