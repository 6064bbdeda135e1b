// Package report prints the outcome of script runs.
package report

import (
	"time"

	"dtscript/internal/results"
)

// Run is one script execution as seen by a reporter.
type Run struct {
	ID      string
	Script  string
	Start   time.Time
	End     time.Time
	Err     error
	Results []results.Result
}

func (r *Run) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Passed reports whether the script halted without error and every
// expectation matched.
func (r *Run) Passed() bool {
	if r.Err != nil {
		return false
	}
	_, fail := results.Tally(r.Results)
	return fail == 0
}

// Stats summarises a batch of runs.
type Stats struct {
	Runs      int
	Passed    int
	Failed    int
	Checks    int
	CheckFail int
	TotalTime time.Duration
}

func NewStats(runs []*Run) *Stats {
	s := &Stats{Runs: len(runs)}
	for _, r := range runs {
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
		pass, fail := results.Tally(r.Results)
		s.Checks += pass + fail
		s.CheckFail += fail
		s.TotalTime += r.Duration()
	}
	return s
}

// Reporter receives finished runs in order, then the summary.
type Reporter interface {
	RunFinished(run *Run)
	Summary(stats *Stats)
}

// New returns the reporter for format: "text", "json" or "junit".
func New(format string, opts TextOptions) (Reporter, bool) {
	switch format {
	case "", "text":
		return NewText(opts), true
	case "json":
		return NewJSON(opts.Out), true
	case "junit":
		return NewJUnit(opts.Out), true
	}
	return nil, false
}
