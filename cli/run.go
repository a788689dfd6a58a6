package cli

// This file contains the run command: execute a suite, then collect and
// publish its artifacts.

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cyreport/cyreport/config"
	"github.com/cyreport/cyreport/junit"
	"github.com/cyreport/cyreport/model"
	"github.com/cyreport/cyreport/reporting"
)

func (a *App) run(ctx *cli.Context) error {
	startTime := time.Now()

	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	suite, err := cfg.Suite(ctx.String("suite"))
	if err != nil {
		return err
	}

	policy := config.PolicyFromEnv()
	browser := config.ResolveBrowser(os.Getenv("SAUCE_BROWSER"), suite)

	runID, err := newRunID()
	if err != nil {
		return err
	}
	record := &model.RunRecord{
		ID:         runID,
		Suite:      suite.Name,
		Timestamp:  startTime,
		Args:       os.Args,
		ResultsDir: cfg.ResultsDir,
		Target: &model.Target{
			Browser: browser,
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
		},
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	opts, err := frameworkOptions(cfg, suite, browser, policy)
	if err != nil {
		return err
	}
	if len(cfg.Framework.Reporters) > 0 {
		a.logger.Warn().Msg("Configuring reporters in the runner config is deprecated, move them to the cypress config file")
		if opts.ReporterConfig, err = writeReporterConfig(cfg.Framework.Reporters, cfg.ResultsDir); err != nil {
			return err
		}
	}
	argv, err := BuildRunArgs(opts)
	if err != nil {
		return err
	}
	env := BuildEnv(os.Environ(), suite, cfg.ResultsDir)

	if abs, err := filepath.Abs(policy.ConsoleLog); err == nil {
		policy.ConsoleLog = abs
	}
	console, err := os.Create(policy.ConsoleLog)
	if err != nil {
		return fmt.Errorf("failed to create console log: %w", err)
	}
	defer console.Close()

	a.logger.Info().
		Str("suite", suite.Name).
		Str("browser", browser).
		Str("results", cfg.ResultsDir).
		Msg("Running suite")

	var result *model.RunResult
	preExec, err := a.runPreExec(ctx.Context, suite.PreExec, env, cfg.ProjectDir(), ctx.Duration("pre-exec-timeout"), console)
	if err != nil {
		a.logger.Error().Err(err).Str("suite", suite.Name).Msg("Pre-exec failed, skipping tests")
		now := time.Now()
		result = &model.RunResult{
			Status:    model.RunStatusFailed,
			Failures:  1,
			Message:   err.Error(),
			ExitCode:  1,
			StartTime: now,
			EndTime:   now,
		}
	} else {
		result = a.executeFramework(ctx.Context, argv, env, cfg.ProjectDir(), suite.SuiteTimeout(ctx.Duration("timeout")), console)

		// Synced web assets leave earlier runs' files in place.
		specs, err := junit.DiscoverSpecsSince(cfg.ResultsDir, startTime)
		if err != nil {
			a.logger.Warn().Err(err).Str("dir", cfg.ResultsDir).Msg("Failed to discover specs")
		}
		a.summarizeSpecs(cfg.ResultsDir, specs, result)
	}

	if len(cfg.Artifacts.Retain) > 0 {
		// Failed archives are logged and never fail the run.
		_, _ = a.retainArtifacts(cfg.Artifacts.Retain, cfg.ProjectDir(), cfg.ResultsDir)
	}

	if err := console.Sync(); err != nil {
		a.logger.Debug().Err(err).Msg("Failed to flush console log")
	}

	artifacts, rep := a.collectAndPublish(ctx, pipeline{
		ResultsDir: cfg.ResultsDir,
		Result:     result,
		Metrics:    []model.Metric{preExec},
		Policy:     policy,
		Meta: reporting.RunMetadata{
			SuiteName:        suite.Name,
			BrowserName:      browser,
			BrowserVersion:   reporting.BrowserVersion(browser, os.Getenv),
			PlatformName:     reporting.ImagePlatformName(os.Getenv),
			FrameworkVersion: cfg.Framework.Version,
			Region:           cfg.Sauce.Region,
			Tags:             cfg.Sauce.Metadata.Tags,
			Build:            cfg.Sauce.Metadata.Build,
			StartTime:        result.StartTime,
			EndTime:          result.EndTime,
		},
	})

	record.Result = result
	record.Artifacts = artifacts
	record.Reporting = rep
	record.Duration = time.Since(startTime)
	if !result.Passed() {
		record.ExitCode = 1
	}
	if err := a.recordRun(record); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to record run")
	}

	if !result.Passed() {
		a.logger.Info().Int("failures", result.FailureCount()).Msg("Suite failed")
		return cli.Exit("", 1)
	}
	a.logger.Info().Msg("Suite passed")
	return nil
}
