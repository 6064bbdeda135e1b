package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"dtscript/internal/results"
)

func sampleRuns() []*Run {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*Run{
		{
			ID:     "r1",
			Script: "boot.dts",
			Start:  start,
			End:    start.Add(1500 * time.Millisecond),
			Results: []results.Result{
				{Line: 3, Op: "comment", Outcome: results.Info, Detail: "starting"},
				{Line: 6, Op: "expect", Outcome: results.Pass, Detail: "Version"},
			},
		},
		{
			ID:     "r2",
			Script: "login.dts",
			Start:  start,
			End:    start.Add(250 * time.Millisecond),
			Results: []results.Result{
				{Line: 2, Op: "expect", Outcome: results.Fail, Detail: "login:"},
			},
		},
		{
			ID:     "r3",
			Script: "broken.dts",
			Start:  start,
			End:    start,
			Err:    errors.New("HandlerError: link down"),
		},
	}
}

func feed(r Reporter, runs []*Run) {
	for _, run := range runs {
		r.RunFinished(run)
	}
	r.Summary(NewStats(runs))
}

func TestNewStats(t *testing.T) {
	s := NewStats(sampleRuns())
	want := Stats{Runs: 3, Passed: 1, Failed: 2, Checks: 2, CheckFail: 1, TotalTime: 1750 * time.Millisecond}
	if *s != want {
		t.Errorf("stats = %+v, want %+v", *s, want)
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"", "text", "json", "junit"} {
		if _, ok := New(format, TextOptions{Out: &bytes.Buffer{}}); !ok {
			t.Errorf("format %q rejected", format)
		}
	}
	if _, ok := New("html", TextOptions{}); ok {
		t.Error("unknown format accepted")
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	off := false
	feed(NewText(TextOptions{Out: &buf, Color: &off}), sampleRuns())
	out := buf.String()

	for _, want := range []string{
		"✓ boot.dts (1.5s)",
		"✗ login.dts (250ms)",
		"  ✗ line 2: expect login:",
		"✗ broken.dts",
		"  HandlerError: link down",
		"Scripts:   3",
		"Passed:    1",
		"Failed:    2",
		"Checks:    2 (1 failed)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "starting") || strings.Contains(out, "\033[") {
		t.Errorf("unexpected verbose or coloured output:\n%s", out)
	}
}

func TestTextVerboseColour(t *testing.T) {
	var buf bytes.Buffer
	on := true
	feed(NewText(TextOptions{Out: &buf, Verbose: true, Color: &on}), sampleRuns()[:1])
	out := buf.String()
	if !strings.Contains(out, "line 3: starting") || !strings.Contains(out, "line 6: expect Version") {
		t.Errorf("verbose results missing:\n%s", out)
	}
	if !strings.Contains(out, green+"✓"+reset) {
		t.Errorf("no colour:\n%s", out)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	feed(NewJSON(&buf), sampleRuns())

	var doc jsonSummary
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if doc.Total != 3 || doc.Failed != 2 || len(doc.Runs) != 3 {
		t.Errorf("summary = %+v", doc)
	}
	if doc.Runs[1].Passed || doc.Runs[1].Results[0].Outcome != "fail" {
		t.Errorf("run 2 = %+v", doc.Runs[1])
	}
	if doc.Runs[2].Error == "" || doc.Runs[2].Results == nil {
		t.Errorf("run 3 = %+v", doc.Runs[2])
	}
}

func TestJUnit(t *testing.T) {
	var buf bytes.Buffer
	feed(NewJUnit(&buf), sampleRuns())
	out := buf.String()
	if !strings.HasPrefix(out, xml.Header) {
		t.Errorf("missing XML header")
	}

	var doc junitSuites
	if err := xml.Unmarshal([]byte(strings.TrimPrefix(out, xml.Header)), &doc); err != nil {
		t.Fatalf("invalid XML: %v", err)
	}
	if len(doc.Suites) != 3 {
		t.Fatalf("suites = %d", len(doc.Suites))
	}
	boot, login, broken := doc.Suites[0], doc.Suites[1], doc.Suites[2]
	if boot.Tests != 1 || boot.Failures != 0 {
		t.Errorf("boot = %+v", boot)
	}
	if login.Failures != 1 || login.Cases[0].Failure == nil || login.Cases[0].Failure.Message != "login:" {
		t.Errorf("login = %+v", login)
	}
	if broken.Errors != 1 || broken.Cases[0].Error == nil {
		t.Errorf("broken = %+v", broken)
	}
}
