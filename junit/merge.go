package junit

// merge.go contains the merger that combines per-spec fragments into one
// junit.xml.

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cyreport/cyreport/config"
)

const (
	// FileName of the merged report inside the results directory.
	FileName = "junit.xml"
	// RootSuiteName is the default grouping of the framework. It carries no
	// tests of its own and is dropped from merged reports.
	RootSuiteName = "Root Suite"
)

// ErrNoSuites is returned when there is nothing to merge.
var ErrNoSuites = errors.New("no test suites to merge")

// FragmentPath returns the path of the fragment of spec in resultsDir.
func FragmentPath(resultsDir, spec string) string {
	return filepath.Join(resultsDir, filepath.Base(spec)+".xml")
}

// ReadFragment parses the fragment at path.
func ReadFragment(path string) (*Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFragment(data)
}

// ParseFragment parses a fragment document.
func ParseFragment(data []byte) (*Fragment, error) {
	f := &Fragment{}
	if err := xml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse junit fragment: %w", err)
	}
	return f, nil
}

// PlatformName returns the platform reported in merged reports. On Linux
// hosts the platform is always "Linux", whatever was requested.
func PlatformName(hostOS, platformName string) string {
	if strings.EqualFold(hostOS, "linux") {
		return "Linux"
	}
	return platformName
}

// BrowserName strips a driver path prefix from a browser identifier such as
// "C:/custom/path:chrome".
func BrowserName(browserName string) string {
	if i := strings.LastIndex(browserName, ":"); i >= 0 {
		return browserName[i+1:]
	}
	return browserName
}

// Merger merges JUnit fragments.
type Merger struct {
	logger zerolog.Logger
	policy config.RunPolicy
}

// NewMerger returns a Merger. The policy's HostOS decides the reported
// platform name.
func NewMerger(logger zerolog.Logger, policy config.RunPolicy) *Merger {
	return &Merger{
		logger: logger,
		policy: policy,
	}
}

// Merge reads the fragment of every spec from resultsDir and writes the
// merged report to resultsDir/junit.xml, returning its path. Missing or
// unparsable fragments are skipped. If no suite is left, nothing is written
// and ErrNoSuites is returned.
func (m *Merger) Merge(specs []string, resultsDir, reportName, browserName, platformName string) (string, error) {
	if len(specs) == 0 {
		return "", ErrNoSuites
	}

	var fragments []*Fragment
	for _, spec := range specs {
		path := FragmentPath(resultsDir, spec)
		f, err := ReadFragment(path)
		if err != nil {
			m.logger.Warn().Err(err).Str("spec", spec).Str("file", path).Msg("Skipping junit fragment")
			continue
		}
		fragments = append(fragments, f)
	}

	report, err := BuildReport(fragments, reportName, PlatformName(m.policy.HostOS, platformName), BrowserName(browserName))
	if err != nil {
		return "", err
	}

	data, err := report.Encode()
	if err != nil {
		return "", err
	}

	path := filepath.Join(resultsDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	m.logger.Debug().
		Str("file", path).
		Int("suites", len(report.Suites)).
		Int("tests", report.Tests).
		Int("failures", report.Failures).
		Msg("Merged junit report")
	return path, nil
}

// BuildReport builds the merged report from fragments, in order. Root suites
// are dropped before totals are computed. The platform and browser names
// are used as given.
func BuildReport(fragments []*Fragment, reportName, platformName, browserName string) (*Report, error) {
	report := &Report{Name: reportName}

	var totalTime float64
	for _, f := range fragments {
		for _, fs := range f.Suites {
			if name, _ := attr(fs.Attrs, "name"); name == RootSuiteName {
				continue
			}

			report.Tests += intAttr(fs.Attrs, "tests")
			report.Failures += intAttr(fs.Attrs, "failures")
			report.Disabled += intAttr(fs.Attrs, "disabled")
			if _, ok := attr(fs.Attrs, "error"); ok {
				report.Errors += intAttr(fs.Attrs, "error")
			} else {
				report.Errors += intAttr(fs.Attrs, "errors")
			}
			totalTime += floatAttr(fs.Attrs, "time")

			report.Suites = append(report.Suites, buildSuite(fs, len(report.Suites), platformName, browserName))
		}
	}

	if len(report.Suites) == 0 {
		return nil, ErrNoSuites
	}

	report.Time = strconv.FormatFloat(totalTime, 'f', 4, 64)
	return report, nil
}

func buildSuite(fs FragmentSuite, id int, platformName, browserName string) Suite {
	s := Suite{
		Attrs: copyAttrs(fs.Attrs, "id"),
		ID:    id,
		Properties: []Property{
			{Name: "platformName", Value: platformName},
			{Name: "browserName", Value: browserName},
		},
		SystemOut: sanitizedPtr(fs.SystemOut),
		SystemErr: sanitizedPtr(fs.SystemErr),
	}

	for _, ftc := range fs.TestCases {
		tc := TestCase{
			Attrs:     copyAttrs(ftc.Attrs),
			SystemOut: sanitizedPtr(ftc.SystemOut),
			SystemErr: sanitizedPtr(ftc.SystemErr),
		}
		if ftc.Skipped != nil {
			skipped := *ftc.Skipped
			tc.Skipped = &skipped
		}
		tc.Failures = sanitizeFailures(ftc.Failures)
		tc.Errors = sanitizeFailures(ftc.Errors)
		for _, raw := range ftc.Extra {
			tc.Extra = append(tc.Extra, RawElement{
				XMLName: xml.Name{Local: raw.XMLName.Local},
				Attrs:   copyAttrs(raw.Attrs),
				Inner:   raw.Inner,
			})
		}
		s.TestCases = append(s.TestCases, tc)
	}

	return s
}

// sanitizeFailures converts failure or error elements, defaulting missing
// attributes to empty strings.
func sanitizeFailures(in []FragmentFailure) []Failure {
	var out []Failure
	for _, f := range in {
		out = append(out, Failure{
			Message: SanitizeText(deref(f.Message)),
			Type:    deref(f.Type),
			Body:    SanitizeText(f.Body),
		})
	}
	return out
}

// Encode serializes the report with an XML header and two space indentation.
func (r *Report) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode junit report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode junit report: %w", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// copyAttrs copies the unqualified attributes, without the skipped names.
// Attribute values are sanitized.
func copyAttrs(attrs []xml.Attr, skip ...string) []xml.Attr {
	out := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space != "" || contains(skip, a.Name.Local) {
			continue
		}
		out = append(out, xml.Attr{
			Name:  xml.Name{Local: a.Name.Local},
			Value: SanitizeText(a.Value),
		})
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func intAttr(attrs []xml.Attr, name string) int {
	v, ok := attr(attrs, name)
	if !ok {
		return 0
	}
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}

func floatAttr(attrs []xml.Attr, name string) float64 {
	v, ok := attr(attrs, name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sanitizedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := SanitizeText(*s)
	return &v
}
