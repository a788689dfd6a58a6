// Package assets assembles the files of a suite run that are handed to the
// reporting service.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/cyreport/cyreport/config"
	"github.com/cyreport/cyreport/diag"
	"github.com/cyreport/cyreport/junit"
	"github.com/cyreport/cyreport/model"
	"github.com/cyreport/cyreport/video"
)

// MergedVideoName is the name of the combined video in the results directory.
const MergedVideoName = "video.mp4"

const (
	opConsoleLog  = "console-log"
	opMetric      = "write-metric"
	opMergeJUnit  = "merge-junit"
	opScreenshots = "screenshots"
	opVideo       = "video"
	opMergeVideo  = "merge-video"
)

// VideoMerger combines per-spec videos into one file.
type VideoMerger interface {
	Merge(ctx context.Context, paths []string, target string) error
}

// ReportMerger combines per-spec JUnit fragments into junit.xml.
type ReportMerger interface {
	Merge(specs []string, resultsDir, reportName, browserName, platformName string) (string, error)
}

// Request describes one collection.
type Request struct {
	// Specs in execution order.
	Specs      []string
	ResultsDir string
	Metrics    []model.Metric

	SuiteName    string
	BrowserName  string
	PlatformName string
}

// Result is the outcome of a collection.
type Result struct {
	// Artifacts in upload order. Every file existed when it was added.
	Artifacts []model.Artifact
	// Videos are the per-spec videos that were found, in spec order.
	Videos []string
	// Diagnostics recorded along the way.
	Diagnostics *diag.Diagnostics
}

// Paths returns the file paths of the collected artifacts.
func (r Result) Paths() []string {
	return model.Paths(r.Artifacts)
}

// Collector gathers the assets of a run.
type Collector struct {
	logger zerolog.Logger
	policy config.RunPolicy
	junit  ReportMerger
	video  VideoMerger
}

// NewCollector returns a Collector using the given merge steps.
func NewCollector(logger zerolog.Logger, policy config.RunPolicy, junit ReportMerger, video VideoMerger) *Collector {
	return &Collector{
		logger: logger,
		policy: policy,
		junit:  junit,
		video:  video,
	}
}

// NewDefaultCollector returns a Collector merging with the junit merger and
// the ffmpeg based video engine.
func NewDefaultCollector(logger zerolog.Logger, policy config.RunPolicy) *Collector {
	return NewCollector(logger, policy, junit.NewMerger(logger, policy), video.NewEngine(logger, nil))
}

type collection struct {
	logger    zerolog.Logger
	diags     *diag.Diagnostics
	artifacts []model.Artifact
}

// add appends path if it exists at the time of the call.
func (c *collection) add(typ model.ArtifactType, path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	c.artifacts = append(c.artifacts, model.Artifact{
		Type: typ,
		Size: uint64(info.Size()),
		File: path,
	})
	c.logger.Debug().Str("type", typ.String()).Str("file", path).Msg("Added asset")
	return true
}

// Collect builds the ordered asset list of a run. Problems are recorded in
// the result's diagnostics; collection itself never fails.
func (c *Collector) Collect(ctx context.Context, req Request) Result {
	col := &collection{
		logger: c.logger,
		diags:  diag.New(c.logger),
	}

	if c.policy.ConsoleLog != "" {
		col.add(model.ArtifactTypeConsoleLog, c.policy.ConsoleLog)
	}

	for _, m := range req.Metrics {
		if m.Empty() {
			continue
		}
		path, err := writeMetric(req.ResultsDir, m)
		if err != nil {
			col.diags.Warn(opMetric, path, err)
			continue
		}
		col.add(model.ArtifactTypeMetric, path)
	}

	if _, err := c.junit.Merge(req.Specs, req.ResultsDir, req.SuiteName, req.BrowserName, req.PlatformName); err != nil {
		if errors.Is(err, junit.ErrNoSuites) {
			c.logger.Warn().Str("dir", req.ResultsDir).Msg("No junit fragments found, skipping junit.xml")
		} else {
			col.diags.Error(opMergeJUnit, filepath.Join(req.ResultsDir, junit.FileName), fmt.Errorf("failed to generate junit file: %w", err))
		}
	}

	var videos []string
	for _, spec := range req.Specs {
		c.collectScreenshots(col, filepath.Join(req.ResultsDir, spec))

		base := filepath.Base(spec)
		mp4 := filepath.Join(req.ResultsDir, base+".mp4")
		if _, err := os.Stat(mp4); err == nil {
			videos = append(videos, mp4)
		} else if c.policy.RecordVideo {
			col.diags.Warn(opVideo, mp4, fmt.Errorf("failed to prepare asset, could not find %s", mp4))
		}

		for _, a := range []struct {
			typ  model.ArtifactType
			path string
		}{
			{model.ArtifactTypeSpecJSON, filepath.Join(req.ResultsDir, base+".json")},
			{model.ArtifactTypeSpecXML, junit.FragmentPath(req.ResultsDir, spec)},
		} {
			if !col.add(a.typ, a.path) {
				c.logger.Debug().Str("spec", spec).Str("file", a.path).Msg("Asset not found")
			}
		}
	}

	if len(videos) > 0 {
		target := filepath.Join(req.ResultsDir, MergedVideoName)
		if err := c.video.Merge(ctx, videos, target); err != nil {
			col.diags.Error(opMergeVideo, target, err)
		} else {
			col.add(model.ArtifactTypeMergedVideo, target)
		}
	}

	col.add(model.ArtifactTypeMergedJUnit, filepath.Join(req.ResultsDir, junit.FileName))

	return Result{
		Artifacts:   col.artifacts,
		Videos:      videos,
		Diagnostics: col.diags,
	}
}

// collectScreenshots adds the files of a spec's screenshot directory.
func (c *Collector) collectScreenshots(col *collection, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			col.diags.Warn(opScreenshots, dir, err)
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		col.add(model.ArtifactTypeScreenshot, filepath.Join(dir, e.Name()))
	}
}

// writeMetric writes m as indented JSON to resultsDir/<name>.
func writeMetric(resultsDir string, m model.Metric) (string, error) {
	path := filepath.Join(resultsDir, m.Name)
	data, err := json.MarshalIndent(m.Data, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to encode metric %s: %w", m.Name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return path, fmt.Errorf("failed to write metric %s: %w", m.Name, err)
	}
	return path, nil
}
