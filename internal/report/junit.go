package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"dtscript/internal/results"
)

// JUnit writes each run as a test suite whose cases are its checks.
type JUnit struct {
	out    io.Writer
	suites []junitSuite
}

type junitSuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Time     float64     `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitFailure `xml:"error,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

func NewJUnit(out io.Writer) *JUnit {
	if out == nil {
		out = os.Stdout
	}
	return &JUnit{out: out}
}

func (r *JUnit) RunFinished(run *Run) {
	suite := junitSuite{
		Name: run.Script,
		Time: run.Duration().Seconds(),
	}
	for _, res := range run.Results {
		if res.Outcome == results.Info {
			continue
		}
		tc := junitCase{
			Name:      fmt.Sprintf("line %d: %s %s", res.Line, res.Op, res.Detail),
			ClassName: run.Script,
		}
		if res.Outcome == results.Fail {
			suite.Failures++
			tc.Failure = &junitFailure{Type: "ExpectationFailed", Message: res.Detail}
		}
		suite.Cases = append(suite.Cases, tc)
	}
	if run.Err != nil {
		suite.Errors++
		suite.Cases = append(suite.Cases, junitCase{
			Name:      "run",
			ClassName: run.Script,
			Error:     &junitFailure{Type: "ScriptError", Message: run.Err.Error()},
		})
	}
	suite.Tests = len(suite.Cases)
	r.suites = append(r.suites, suite)
}

func (r *JUnit) Summary(*Stats) {
	output, err := xml.MarshalIndent(junitSuites{Suites: r.suites}, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, "Error generating JUnit XML output: %v\n", err)
		return
	}
	fmt.Fprint(r.out, xml.Header)
	fmt.Fprintln(r.out, string(output))
}
