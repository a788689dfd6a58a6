package junit

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyreport/cyreport/config"
)

const loginFragment = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites name="Mocha Tests" time="2.5" tests="1" failures="0">
  <testsuite name="Root Suite" timestamp="2024-05-01T10:00:00" tests="0" failures="0" time="0">
  </testsuite>
  <testsuite name="login" id="7" timestamp="2024-05-01T10:00:00" tests="1" failures="0" time="2.5" file="cypress/e2e/login.cy.js">
    <properties>
      <property name="specSource" value="cypress"/>
    </properties>
    <testcase name="login works" time="2.5" classname="login works">
    </testcase>
  </testsuite>
</testsuites>
`

const checkoutFragment = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites name="Mocha Tests" time="3.1" tests="1" failures="1">
  <testsuite name="Root Suite" timestamp="2024-05-01T10:01:00" tests="0" failures="0" time="0">
  </testsuite>
  <testsuite name="checkout" timestamp="2024-05-01T10:01:00" tests="1" failures="1" time="3.1" errors="2">
    <testcase name="pays" time="3.1" classname="pays">
      <failure message="expected &lt;button&gt; to be visible" type="AssertionError">AssertionError: expected &lt;button&gt; to be visible
    at Context.eval (checkout.cy.js:12:8)</failure>
    </testcase>
  </testsuite>
</testsuites>
`

func writeFragment(t *testing.T, dir, spec, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(FragmentPath(dir, spec), []byte(content), 0644))
}

func newMerger(hostOS string) *Merger {
	return NewMerger(zerolog.Nop(), config.RunPolicy{HostOS: hostOS, RecordVideo: true})
}

func readReport(t *testing.T, path string) *Report {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r := &Report{}
	require.NoError(t, xml.Unmarshal(data, r))
	return r
}

func TestPlatformName(t *testing.T) {
	tests := []struct {
		hostOS   string
		platform string
		want     string
	}{
		{hostOS: "linux", platform: "Windows 11", want: "Linux"},
		{hostOS: "Linux", platform: "", want: "Linux"},
		{hostOS: "windows", platform: "Windows 11", want: "Windows 11"},
		{hostOS: "darwin", platform: "macOS 13", want: "macOS 13"},
	}

	for _, tt := range tests {
		t.Run(tt.hostOS+"/"+tt.platform, func(t *testing.T) {
			assert.Equal(t, tt.want, PlatformName(tt.hostOS, tt.platform))
		})
	}
}

func TestBrowserName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "chrome", want: "chrome"},
		{in: "C:/custom/path:chrome", want: "chrome"},
		{in: "/usr/bin/firefox:firefox", want: "firefox"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, BrowserName(tt.in))
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "expected true", want: "expected true"},
		{name: "markup is kept", in: "a <b> & 'c'", want: "a <b> & 'c'"},
		{name: "ansi escape", in: "\x1b[31mred\x1b[0m", want: "[31mred[0m"},
		{name: "whitespace is kept", in: "a\tb\r\nc", want: "a\tb\r\nc"},
		{name: "nul and c1 controls", in: "a\x00b\u0090c\u0085", want: "abc\u0085"},
		{name: "noncharacters", in: "x\ufffey\ufdd0", want: "xy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeText(tt.in))
		})
	}
}

func TestMerger_Merge(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "cypress/e2e/login.cy.js", loginFragment)
	writeFragment(t, dir, "cypress/e2e/checkout.cy.js", checkoutFragment)

	m := newMerger("linux")
	path, err := m.Merge([]string{"cypress/e2e/login.cy.js", "cypress/e2e/checkout.cy.js"}, dir, "my suite", "C:/custom/path:chrome", "Windows 11")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, FileName), path)

	r := readReport(t, path)
	assert.Equal(t, "my suite", r.Name)
	assert.Equal(t, 2, r.Tests)
	assert.Equal(t, 1, r.Failures)
	assert.Equal(t, "5.6000", r.Time)
	assert.Equal(t, 2, r.Errors)
	assert.Equal(t, 0, r.Disabled)

	require.Len(t, r.Suites, 2, "root suites must be dropped")
	for i, s := range r.Suites {
		assert.Equal(t, i, s.ID)
		name, _ := attr(s.Attrs, "name")
		assert.NotEqual(t, RootSuiteName, name)

		want := []Property{
			{Name: "platformName", Value: "Linux"},
			{Name: "browserName", Value: "chrome"},
		}
		if diff := cmp.Diff(want, s.Properties); diff != "" {
			t.Errorf("suite %d properties mismatch (-want +got):\n%s", i, diff)
		}
	}

	login := r.Suites[0]
	ts, ok := attr(login.Attrs, "timestamp")
	require.True(t, ok)
	assert.Equal(t, "2024-05-01T10:00:00", ts)
	file, _ := attr(login.Attrs, "file")
	assert.Equal(t, "cypress/e2e/login.cy.js", file)

	checkout := r.Suites[1]
	require.Len(t, checkout.TestCases, 1)
	require.Len(t, checkout.TestCases[0].Failures, 1)
	failure := checkout.TestCases[0].Failures[0]
	assert.Equal(t, "expected <button> to be visible", failure.Message)
	assert.Equal(t, "AssertionError", failure.Type)
	assert.Contains(t, failure.Body, "at Context.eval (checkout.cy.js:12:8)")
}

func TestMerger_OutputIsEscapedAndIndented(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "checkout.cy.js", checkoutFragment)

	path, err := newMerger("linux").Merge([]string{"checkout.cy.js"}, dir, "suite", "chrome", "Linux")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Contains(t, out, "\n  <testsuite ")
	assert.Contains(t, out, `message="expected &lt;button&gt; to be visible"`)
	assert.Contains(t, out, "<![CDATA[AssertionError: expected <button> to be visible")
	assert.NotContains(t, out, "&amp;lt;", "text must be escaped exactly once")
}

func TestMerger_FailureAttributesDefaultToEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "bare.cy.js", `<testsuites>
  <testsuite name="bare" tests="1" failures="1">
    <testcase name="t"><failure/></testcase>
  </testsuite>
</testsuites>`)

	path, err := newMerger("darwin").Merge([]string{"bare.cy.js"}, dir, "suite", "safari", "macOS 13")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<failure message="" type=""></failure>`)
	assert.Contains(t, string(data), `<property name="platformName" value="macOS 13"></property>`)
}

func TestMerger_KeepsErrorsAndUnknownChildren(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "crash.cy.js", `<testsuites>
  <testsuite name="crash" tests="2" failures="2">
    <testcase name="t"><error message="crashed" type="TypeError">stack</error></testcase>
    <testcase name="u">
      <properties><property name="retry" value="2"/></properties>
      <failure message="first" type="AssertionError">one</failure>
      <failure message="second" type="AssertionError">two</failure>
    </testcase>
  </testsuite>
</testsuites>`)

	path, err := newMerger("linux").Merge([]string{"crash.cy.js"}, dir, "suite", "chrome", "Linux")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `<error message="crashed" type="TypeError"><![CDATA[stack]]></error>`)
	assert.Contains(t, out, `<properties><property name="retry" value="2"/></properties>`)

	r := readReport(t, path)
	require.Len(t, r.Suites, 1)
	require.Len(t, r.Suites[0].TestCases, 2)
	require.Len(t, r.Suites[0].TestCases[0].Errors, 1)
	assert.Equal(t, "crashed", r.Suites[0].TestCases[0].Errors[0].Message)

	failures := r.Suites[0].TestCases[1].Failures
	require.Len(t, failures, 2)
	assert.Equal(t, "first", failures[0].Message)
	assert.Equal(t, "second", failures[1].Message)
}

func TestMerger_IsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "login.cy.js", loginFragment)
	writeFragment(t, dir, "checkout.cy.js", checkoutFragment)
	specs := []string{"login.cy.js", "checkout.cy.js"}

	m := newMerger("linux")
	path, err := m.Merge(specs, dir, "suite", "chrome", "Linux")
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = m.Merge(specs, dir, "suite", "chrome", "Linux")
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, string(first), string(second))
}

func TestMerger_SkipsMissingAndInvalidFragments(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "login.cy.js", loginFragment)
	writeFragment(t, dir, "broken.cy.js", "<testsuites><testsuite")

	path, err := newMerger("linux").Merge([]string{"missing.cy.js", "broken.cy.js", "login.cy.js"}, dir, "suite", "chrome", "Linux")
	require.NoError(t, err)

	r := readReport(t, path)
	require.Len(t, r.Suites, 1)
	assert.Equal(t, 0, r.Suites[0].ID)
	assert.Equal(t, 1, r.Tests)
}

func TestMerger_NoSuites(t *testing.T) {
	tests := []struct {
		name      string
		fragments map[string]string
		specs     []string
	}{
		{name: "no specs"},
		{
			name:  "no fragments",
			specs: []string{"login.cy.js"},
		},
		{
			name:      "only root suites",
			fragments: map[string]string{"empty.cy.js": `<testsuites><testsuite name="Root Suite" tests="0"/></testsuites>`},
			specs:     []string{"empty.cy.js"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for spec, content := range tt.fragments {
				writeFragment(t, dir, spec, content)
			}

			_, err := newMerger("linux").Merge(tt.specs, dir, "suite", "chrome", "Linux")
			require.True(t, errors.Is(err, ErrNoSuites))

			_, err = os.Stat(filepath.Join(dir, FileName))
			require.True(t, os.IsNotExist(err), "no report must be written")
		})
	}
}

func TestBuildReport_NonNumericTotals(t *testing.T) {
	f, err := ParseFragment([]byte(`<testsuites>
  <testsuite name="a" tests="n/a" failures="" time="abc" disabled="1"/>
  <testsuite name="b" tests="2" failures="1" time="0.25" error="3"/>
</testsuites>`))
	require.NoError(t, err)

	r, err := BuildReport([]*Fragment{f}, "suite", "Linux", "chrome")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Tests)
	assert.Equal(t, 1, r.Failures)
	assert.Equal(t, 1, r.Disabled)
	assert.Equal(t, 3, r.Errors)
	assert.Equal(t, "0.2500", r.Time)
}

func TestBuildReport_SanitizesFailures(t *testing.T) {
	msg := "\x1b[31mexpected true\x1b[0m"
	f := &Fragment{Suites: []FragmentSuite{{
		Attrs: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: "colors"}},
		TestCases: []FragmentTestCase{{
			Attrs:   []xml.Attr{{Name: xml.Name{Local: "name"}, Value: "t"}},
			Failures: []FragmentFailure{{Message: &msg, Body: "trace\x00 line"}},
		}},
	}}}

	r, err := BuildReport([]*Fragment{f}, "suite", "Linux", "chrome")
	require.NoError(t, err)

	require.Len(t, r.Suites[0].TestCases[0].Failures, 1)
	failure := r.Suites[0].TestCases[0].Failures[0]
	assert.Equal(t, "[31mexpected true[0m", failure.Message)
	assert.Equal(t, "", failure.Type)
	assert.Equal(t, "trace line", failure.Body)

	data, err := r.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\x1b")
	assert.NotContains(t, string(data), "\uFFFD")
}

func TestSummarize(t *testing.T) {
	f, err := ParseFragment([]byte(checkoutFragment))
	require.NoError(t, err)

	s := Summarize(f)
	assert.Equal(t, 1, s.Tests)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 3100*time.Millisecond, s.Duration)
}

func TestDiscoverSpecs(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "login.cy.js", loginFragment)
	writeFragment(t, dir, "checkout.cy.js", checkoutFragment)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("<testsuites/>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.cy.js.json"), []byte("{}"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "login.cy.js"), 0755))

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(FragmentPath(dir, "login.cy.js"), base, base))
	require.NoError(t, os.Chtimes(FragmentPath(dir, "checkout.cy.js"), base.Add(time.Second), base.Add(time.Second)))

	specs, err := DiscoverSpecs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"login.cy.js", "checkout.cy.js"}, specs)

	// Same write time falls back to the name.
	require.NoError(t, os.Chtimes(FragmentPath(dir, "login.cy.js"), base.Add(time.Second), base.Add(time.Second)))
	specs, err = DiscoverSpecs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"checkout.cy.js", "login.cy.js"}, specs)
}

func TestDiscoverSpecs_UnionOfSpecFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"a.cy.js.xml",
		"a.cy.js.mp4",
		"crashed.cy.js.mp4",
		"crashed.cy.js.json",
		"video.mp4",
		"run.json",
		"pre-exec.json",
		"console.log",
		FileName,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "crashed.cy.js.mp4"), base, base))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.cy.js.xml"), base.Add(time.Second), base.Add(time.Second)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.cy.js.mp4"), base.Add(time.Second), base.Add(time.Second)))

	specs, err := DiscoverSpecs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"crashed.cy.js", "a.cy.js"}, specs)
}

func TestDiscoverSpecsSince(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "stale.cy.js", loginFragment)
	writeFragment(t, dir, "fresh.cy.js", checkoutFragment)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(FragmentPath(dir, "stale.cy.js"), start.Add(-time.Minute), start.Add(-time.Minute)))
	require.NoError(t, os.Chtimes(FragmentPath(dir, "fresh.cy.js"), start, start))

	specs, err := DiscoverSpecsSince(dir, start.Add(300*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh.cy.js"}, specs)

	specs, err = DiscoverSpecs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale.cy.js", "fresh.cy.js"}, specs)
}
