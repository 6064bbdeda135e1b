package api

import (
	"context"
	"log/slog"
	"time"

	"dtscript/internal/device"
	"dtscript/internal/results"
)

// Vars is the runtime variable store handlers read and write.
type Vars interface {
	Get(name string) (string, bool)
	Set(name, value string)
	Delete(name string)
}

// Context is what a handler sees of the executing script.
type Context struct {
	Ctx     context.Context
	Vars    Vars
	Session device.Session
	Results results.Recorder
	Log     *slog.Logger

	RunID  string
	Script string
	Line   int
	Op     string
	Device string

	// AbortFunc is called by Abort; the executor stops after the current
	// instruction.
	AbortFunc func(reason string)
}

// Abort asks the executor to stop once this instruction returns.
func (c *Context) Abort(reason string) {
	if c.AbortFunc != nil {
		c.AbortFunc(reason)
	}
}

// Record reports an outcome for the current instruction.
func (c *Context) Record(outcome results.Outcome, detail string) error {
	if c.Results == nil {
		return nil
	}
	return c.Results.Record(c.Ctx, results.Result{
		RunID:   c.RunID,
		Script:  c.Script,
		Line:    c.Line,
		Op:      c.Op,
		Device:  c.Device,
		Outcome: outcome,
		Detail:  detail,
		Time:    time.Now(),
	})
}
