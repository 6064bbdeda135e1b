// Package results records the outcomes scripts report, such as pattern
// expectations, so they can be inspected after a run.
package results

import (
	"context"
	"sync"
	"time"
)

// Outcome classifies a recorded result.
type Outcome string

const (
	Pass Outcome = "pass"
	Fail Outcome = "fail"
	Info Outcome = "info"
)

// Result is one outcome reported by an instruction.
type Result struct {
	RunID   string
	Script  string
	Line    int
	Op      string
	Device  string
	Outcome Outcome
	Detail  string
	Time    time.Time
}

// Recorder receives results as a script executes.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Memory keeps results in process; it is what runs use without a database.
type Memory struct {
	mu      sync.Mutex
	results []Result
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

// Results returns the results of runID, or all results when runID is empty.
func (m *Memory) Results(runID string) []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Result
	for _, r := range m.results {
		if runID == "" || r.RunID == runID {
			out = append(out, r)
		}
	}
	return out
}

// Tally counts outcomes.
func Tally(rs []Result) (pass, fail int) {
	for _, r := range rs {
		switch r.Outcome {
		case Pass:
			pass++
		case Fail:
			fail++
		}
	}
	return pass, fail
}

// Multi records every result to each recorder in turn and stops at the
// first error.
func Multi(recorders ...Recorder) Recorder {
	return multi(recorders)
}

type multi []Recorder

func (m multi) Record(ctx context.Context, r Result) error {
	for _, rec := range m {
		if err := rec.Record(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
