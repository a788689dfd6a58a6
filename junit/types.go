// Package junit reads the per-spec JUnit fragments written by the test
// framework and merges them into one report.
package junit

import "encoding/xml"

// Fragment is one spec's JUnit document as written by the framework. It is
// only ever read; the merged report is built from it into new values.
type Fragment struct {
	XMLName xml.Name        `xml:"testsuites"`
	Attrs   []xml.Attr      `xml:",any,attr"`
	Suites  []FragmentSuite `xml:"testsuite"`
}

// FragmentSuite is a testsuite element of a fragment.
type FragmentSuite struct {
	Attrs     []xml.Attr         `xml:",any,attr"`
	TestCases []FragmentTestCase `xml:"testcase"`
	SystemOut *string            `xml:"system-out"`
	SystemErr *string            `xml:"system-err"`
}

// FragmentTestCase is a testcase element of a fragment.
type FragmentTestCase struct {
	Attrs     []xml.Attr        `xml:",any,attr"`
	Failures  []FragmentFailure `xml:"failure"`
	Errors    []FragmentFailure `xml:"error"`
	Skipped   *Skipped          `xml:"skipped"`
	SystemOut *string           `xml:"system-out"`
	SystemErr *string           `xml:"system-err"`
	Extra     []RawElement      `xml:",any"`
}

// RawElement is a child element that is carried through the merge as is.
type RawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// FragmentFailure is a failure or error element of a fragment. Message and
// Type are pointers so an absent attribute can be told apart from an empty
// one.
type FragmentFailure struct {
	Message *string `xml:"message,attr"`
	Type    *string `xml:"type,attr"`
	Body    string  `xml:",chardata"`
}

// Skipped marks a skipped test case.
type Skipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// Report is the merged JUnit document.
type Report struct {
	XMLName  xml.Name `xml:"testsuites"`
	Name     string   `xml:"name,attr"`
	Tests    int      `xml:"tests,attr"`
	Failures int      `xml:"failures,attr"`
	Time     string   `xml:"time,attr"`
	Errors   int      `xml:"error,attr"`
	Disabled int      `xml:"disabled,attr"`
	Suites   []Suite  `xml:"testsuite"`
}

// Suite is a testsuite of the merged report. Source attributes other than
// id are carried through unchanged.
type Suite struct {
	Attrs      []xml.Attr `xml:",any,attr"`
	ID         int        `xml:"id,attr"`
	Properties []Property `xml:"properties>property"`
	TestCases  []TestCase `xml:"testcase"`
	SystemOut  *string    `xml:"system-out"`
	SystemErr  *string    `xml:"system-err"`
}

// Property is a name/value pair attached to a suite.
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// TestCase is a testcase of the merged report.
type TestCase struct {
	Attrs     []xml.Attr   `xml:",any,attr"`
	Failures  []Failure    `xml:"failure"`
	Errors    []Failure    `xml:"error"`
	Skipped   *Skipped     `xml:"skipped"`
	Extra     []RawElement `xml:",any"`
	SystemOut *string      `xml:"system-out"`
	SystemErr *string      `xml:"system-err"`
}

// Failure is a failure or error of a merged test case. Both attributes are
// always written.
type Failure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",cdata"`
}

// attr returns the value of the attribute with the given local name.
func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
