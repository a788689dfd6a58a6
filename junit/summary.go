package junit

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Summary holds the counts of one fragment, root suites excluded.
type Summary struct {
	Tests    int
	Failures int
	Duration time.Duration
}

// Summarize counts the tests and failures of f.
func Summarize(f *Fragment) Summary {
	var s Summary
	var seconds float64
	for _, fs := range f.Suites {
		if name, _ := attr(fs.Attrs, "name"); name == RootSuiteName {
			continue
		}
		s.Tests += intAttr(fs.Attrs, "tests")
		s.Failures += intAttr(fs.Attrs, "failures")
		seconds += floatAttr(fs.Attrs, "time")
	}
	s.Duration = time.Duration(seconds * float64(time.Second))
	return s
}

// specExts are the extensions of the files the framework writes per spec.
var specExts = map[string]bool{
	".xml":  true,
	".json": true,
	".mp4":  true,
}

// DiscoverSpecs returns the specs that left a fragment, a result file or a
// video in resultsDir, in the order their first file was written. Specs
// written at the same time are ordered by name. Only names that keep the
// spec's own extension once the artifact extension is removed count, so
// merged files and metrics such as video.mp4 or run.json are ignored.
func DiscoverSpecs(resultsDir string) ([]string, error) {
	return DiscoverSpecsSince(resultsDir, time.Time{})
}

// DiscoverSpecsSince is DiscoverSpecs restricted to files modified at or
// after since. Since is truncated to the second to tolerate coarse file
// system timestamps.
func DiscoverSpecsSince(resultsDir string, since time.Time) ([]string, error) {
	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		return nil, err
	}
	since = since.Truncate(time.Second)

	firstSeen := map[string]time.Time{}
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.IsDir() || name == FileName || !specExts[ext] {
			continue
		}
		spec := strings.TrimSuffix(name, ext)
		if filepath.Ext(spec) == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		modTime := info.ModTime()
		if modTime.Before(since) {
			continue
		}
		if seen, ok := firstSeen[spec]; !ok || modTime.Before(seen) {
			firstSeen[spec] = modTime
		}
	}

	specs := make([]string, 0, len(firstSeen))
	for spec := range firstSeen {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		ti, tj := firstSeen[specs[i]], firstSeen[specs[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return specs[i] < specs[j]
	})
	return specs, nil
}
