package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// JSON collects runs and writes one document on Summary.
type JSON struct {
	out  io.Writer
	runs []jsonRun
}

type jsonRun struct {
	ID       string        `json:"id"`
	Script   string        `json:"script"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Results  []jsonResult  `json:"results"`
}

type jsonResult struct {
	Line    int    `json:"line"`
	Op      string `json:"op"`
	Device  string `json:"device,omitempty"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

type jsonSummary struct {
	Runs      []jsonRun     `json:"runs"`
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Checks    int           `json:"checks"`
	CheckFail int           `json:"checks_failed"`
	TotalTime time.Duration `json:"total_time"`
}

func NewJSON(out io.Writer) *JSON {
	if out == nil {
		out = os.Stdout
	}
	return &JSON{out: out, runs: make([]jsonRun, 0)}
}

func (r *JSON) RunFinished(run *Run) {
	jr := jsonRun{
		ID:       run.ID,
		Script:   run.Script,
		Passed:   run.Passed(),
		Duration: run.Duration(),
		Results:  make([]jsonResult, 0, len(run.Results)),
	}
	if run.Err != nil {
		jr.Error = run.Err.Error()
	}
	for _, res := range run.Results {
		jr.Results = append(jr.Results, jsonResult{
			Line:    res.Line,
			Op:      res.Op,
			Device:  res.Device,
			Outcome: string(res.Outcome),
			Detail:  res.Detail,
		})
	}
	r.runs = append(r.runs, jr)
}

func (r *JSON) Summary(stats *Stats) {
	output, err := json.MarshalIndent(jsonSummary{
		Runs:      r.runs,
		Total:     stats.Runs,
		Passed:    stats.Passed,
		Failed:    stats.Failed,
		Checks:    stats.Checks,
		CheckFail: stats.CheckFail,
		TotalTime: stats.TotalTime,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, "Error generating JSON output: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, string(output))
}
