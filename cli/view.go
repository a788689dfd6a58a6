package cli

// This file contains the view command for displaying a previous run.

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cyreport/cyreport/history"
	"github.com/cyreport/cyreport/model"
)

// viewArg returns the run selector of the view command. A leading "--" is
// dropped so negative indexes can be passed as "view -- -1".
func viewArg(in []string) string {
	if len(in) > 0 && in[0] == "--" {
		in = in[1:]
	}
	if len(in) == 0 {
		return "0"
	}
	return in[0]
}

func (a *App) view(ctx *cli.Context) error {
	entries, err := history.LoadEntries(a.logger, ctx.String("root"))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	history.SortNewestFirst(entries)

	entry, err := history.Find(entries, viewArg(ctx.Args().Slice()))
	if err != nil {
		return err
	}

	return displayRun(os.Stdout, entry)
}

func displayRun(w io.Writer, entry *history.Entry) error {
	rec := entry.Record

	shortID := rec.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	// Print header
	fmt.Fprintf(w, "=== Run: %s ===\n", shortID)
	fmt.Fprintf(w, "Suite: %s\n", rec.Suite)
	fmt.Fprintf(w, "Time: %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", rec.Duration)
	fmt.Fprintf(w, "Exit Code: %d\n", rec.ExitCode)
	if rec.Target != nil {
		fmt.Fprintf(w, "Browser: %s (%s/%s)\n", rec.Target.Browser, rec.Target.OS, rec.Target.Arch)
	}
	if rec.Reporting != nil {
		if rec.Reporting.JobDetailsURL != "" {
			fmt.Fprintf(w, "Job: %s\n", rec.Reporting.JobDetailsURL)
		}
		fmt.Fprintf(w, "Reporting Succeeded: %t\n", rec.Reporting.Succeeded)
	}
	fmt.Fprintln(w)

	if res := rec.Result; res != nil {
		if res.Message != "" {
			fmt.Fprintf(w, "Failure: %s\n", res.Message)
		}
		for _, s := range res.Specs {
			status := "✓"
			if !s.Passed() {
				status = "✗"
			}
			fmt.Fprintf(w, "%s  %s  tests=%d failures=%d [%s]\n", status, s.Spec, s.Tests, s.Failures, s.Duration)
		}
		fmt.Fprintln(w)
	}

	var console *model.Artifact
	for i := range rec.Artifacts {
		artifact := &rec.Artifacts[i]
		fmt.Fprintf(w, "%-10s %s (%.1f KB)\n", artifact.Type.String(), artifact.File, float64(artifact.Size)/1024)
		if artifact.Type == model.ArtifactTypeConsoleLog {
			console = artifact
		}
	}

	if console == nil {
		return nil
	}

	// The console log lives outside the results directory and may be gone.
	data, err := os.ReadFile(console.File)
	if err != nil {
		fmt.Fprintf(w, "\nConsole log not available: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "\nConsole Output: %s\n", console.File)
	fmt.Fprintln(w, string(data))
	return nil
}
