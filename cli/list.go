package cli

// This file contains the list command for displaying previous runs.

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cyreport/cyreport/history"
)

func (a *App) list(ctx *cli.Context) error {
	filterSuite := ctx.String("suite")
	limit := ctx.Int("limit")

	entries, err := history.LoadEntries(a.logger, ctx.String("root"))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	// Apply suite filter if specified
	var filteredEntries []history.Entry
	for _, entry := range entries {
		if filterSuite == "" || entry.Record.Suite == filterSuite {
			filteredEntries = append(filteredEntries, entry)
		}
	}

	if len(filteredEntries) == 0 {
		if filterSuite != "" {
			fmt.Printf("No runs found for suite: %s\n", filterSuite)
		} else {
			fmt.Println("No runs found")
		}
		return nil
	}

	history.SortNewestFirst(filteredEntries)

	displayRuns := filteredEntries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	fmt.Printf("\n=== Runs (%d total) ===\n\n", len(filteredEntries))

	for _, entry := range displayRuns {
		rec := entry.Record
		timestamp := rec.Timestamp.Format("2006-01-02 15:04:05")
		duration := rec.Duration.Round(time.Millisecond)

		status := "✓"
		if rec.ExitCode != 0 {
			status = "✗"
		}

		// Show short ID (first 8 chars)
		shortID := rec.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Printf("%s  %s  [%s]  suite=%s  id=%s\n", status, timestamp, duration, rec.Suite, shortID)
		if rec.Target != nil && rec.Target.Browser != "" {
			fmt.Printf("   Browser: %s (%s/%s)\n", rec.Target.Browser, rec.Target.OS, rec.Target.Arch)
		}
		if rec.Result != nil {
			fmt.Printf("   Specs: %d, failures: %d\n", len(rec.Result.Specs), rec.Result.FailureCount())
		}
		if rec.Reporting != nil && rec.Reporting.JobDetailsURL != "" {
			fmt.Printf("   Job: %s\n", rec.Reporting.JobDetailsURL)
		}
		counts := map[string]int{}
		var order []string
		for _, artifact := range rec.Artifacts {
			name := artifact.Type.String()
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
		for _, name := range order {
			fmt.Printf("   %s: %d\n", name, counts[name])
		}
		fmt.Printf("   %s\n", entry.FullPath)
		fmt.Println()
	}

	fmt.Println("View a run: cyreport view <ID>")

	return nil
}
