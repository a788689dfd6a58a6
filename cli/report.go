package cli

// This file contains the reporting pipeline shared by the run and report
// commands, and the standalone merge commands.

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cyreport/cyreport/assets"
	"github.com/cyreport/cyreport/config"
	"github.com/cyreport/cyreport/diag"
	"github.com/cyreport/cyreport/junit"
	"github.com/cyreport/cyreport/model"
	"github.com/cyreport/cyreport/reporting"
	"github.com/cyreport/cyreport/video"
)

// pipeline carries everything collecting and publishing one run needs.
type pipeline struct {
	ResultsDir string
	Result     *model.RunResult
	Metrics    []model.Metric
	Policy     config.RunPolicy
	Meta       reporting.RunMetadata
}

// collectAndPublish collects the assets of a run and hands them to the
// reporting service. Problems are logged and never returned, so they cannot
// change the exit code of a run.
func (a *App) collectAndPublish(ctx *cli.Context, p pipeline) ([]model.Artifact, *model.Reporting) {
	collected := assets.NewDefaultCollector(a.logger, p.Policy).Collect(ctx.Context, assets.Request{
		Specs:        p.Result.SpecNames(),
		ResultsDir:   p.ResultsDir,
		Metrics:      p.Metrics,
		SuiteName:    p.Meta.SuiteName,
		BrowserName:  p.Meta.BrowserName,
		PlatformName: p.Meta.PlatformName,
	})

	diags := diag.New(a.logger)
	diags.Merge(collected.Diagnostics)
	defer func() {
		if err := diags.Err(); err != nil {
			a.logger.Warn().Int("problems", diags.Len()).Bool("errors", diags.HasErrors()).Msg("Reporting finished with problems")
			a.logger.Debug().Err(err).Msg("Reporting problems")
		}
	}()

	a.logger.Info().Int("assets", len(collected.Artifacts)).Int("videos", len(collected.Videos)).Msg("Collected assets")

	if ctx.Bool("skip-reporting") {
		a.logger.Info().Msg("Skipping reporting")
		return collected.Artifacts, nil
	}

	username, accessKey := ctx.String("username"), ctx.String("access-key")
	if username == "" || accessKey == "" {
		a.logger.Warn().Msg("No reporting credentials set (SAUCE_USERNAME, SAUCE_ACCESS_KEY), skipping reporting")
		status := reporting.StatusFile{Path: ctx.String("status-file")}
		if err := status.Update(map[string]any{"reportingSucceeded": false}); err != nil {
			diags.Warn("write status", status.Path, err)
		}
		return collected.Artifacts, nil
	}

	client := reporting.NewHTTPClient(a.logger, reporting.ClientOptions{
		Region:    p.Meta.Region,
		Username:  username,
		AccessKey: accessKey,
		UserAgent: a.userAgent(),
	})
	outcome := reporting.NewPublisher(a.logger, client, ctx.String("status-file")).
		Publish(ctx.Context, p.Meta, collected.Paths(), p.Result.FailureCount())
	diags.Merge(outcome.Diagnostics)

	rep := &model.Reporting{Succeeded: outcome.Succeeded}
	if outcome.Job != nil {
		rep.JobDetailsURL = outcome.Job.URL
	}
	return collected.Artifacts, rep
}

// specsFor returns the specs given on the command line, or the specs that
// left results in resultsDir.
func (a *App) specsFor(ctx *cli.Context, resultsDir string) ([]string, error) {
	if specs := ctx.StringSlice("spec"); len(specs) > 0 {
		return specs, nil
	}
	specs, err := junit.DiscoverSpecs(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover specs in %s: %w", resultsDir, err)
	}
	a.logger.Debug().Strs("specs", specs).Msg("Discovered specs")
	return specs, nil
}

// summarizeSpecs fills the per-spec results of result from the fragments
// in resultsDir. A spec without a readable fragment counts as empty.
func (a *App) summarizeSpecs(resultsDir string, specs []string, result *model.RunResult) {
	result.Specs = nil
	result.TotalFailed = 0

	for _, spec := range specs {
		sr := model.SpecResult{Spec: spec}

		path := junit.FragmentPath(resultsDir, spec)
		fragment, err := junit.ReadFragment(path)
		if err != nil {
			a.logger.Warn().Err(err).Str("spec", spec).Str("file", path).Msg("Failed to read spec result")
		} else {
			s := junit.Summarize(fragment)
			sr.Tests = s.Tests
			sr.Failures = s.Failures
			sr.Duration = s.Duration
		}

		for _, ext := range []string{".mp4", ".json", ".xml"} {
			p := filepath.Join(resultsDir, filepath.Base(spec)+ext)
			if _, err := os.Stat(p); err == nil {
				sr.Artifacts = append(sr.Artifacts, p)
			}
		}

		result.TotalFailed += sr.Failures
		result.Specs = append(result.Specs, sr)
	}
}

func (a *App) report(ctx *cli.Context) error {
	resultsDir, err := filepath.Abs(ctx.String("results-dir"))
	if err != nil {
		return fmt.Errorf("failed to resolve results directory: %w", err)
	}

	specs, err := a.specsFor(ctx, resultsDir)
	if err != nil {
		return err
	}

	result := &model.RunResult{EndTime: time.Now()}
	a.summarizeSpecs(resultsDir, specs, result)
	var total time.Duration
	for _, s := range result.Specs {
		total += s.Duration
	}
	result.StartTime = result.EndTime.Add(-total)

	browser := ctx.String("browser")
	a.collectAndPublish(ctx, pipeline{
		ResultsDir: resultsDir,
		Result:     result,
		Policy:     config.PolicyFromEnv(),
		Meta: reporting.RunMetadata{
			SuiteName:        ctx.String("suite"),
			BrowserName:      browser,
			BrowserVersion:   reporting.BrowserVersion(browser, os.Getenv),
			PlatformName:     platformName(ctx),
			FrameworkVersion: ctx.String("framework-version"),
			Region:           ctx.String("region"),
			Tags:             ctx.StringSlice("tag"),
			Build:            ctx.String("build"),
			StartTime:        result.StartTime,
			EndTime:          result.EndTime,
		},
	})

	if !result.Passed() {
		return cli.Exit("", 1)
	}
	return nil
}

func (a *App) mergeJUnit(ctx *cli.Context) error {
	resultsDir := ctx.String("results-dir")
	specs, err := a.specsFor(ctx, resultsDir)
	if err != nil {
		return err
	}

	merger := junit.NewMerger(a.logger, config.PolicyFromEnv())
	path, err := merger.Merge(specs, resultsDir, ctx.String("name"), ctx.String("browser"), platformName(ctx))
	if err != nil {
		return fmt.Errorf("failed to merge junit fragments: %w", err)
	}
	fmt.Println(path)
	return nil
}

func (a *App) mergeVideo(ctx *cli.Context) error {
	videos := ctx.Args().Slice()
	if len(videos) == 0 {
		return fmt.Errorf("no videos given")
	}

	output := ctx.String("output")
	if err := video.NewEngine(a.logger, nil).Merge(ctx.Context, videos, output); err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}
