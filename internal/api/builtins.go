package api

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"dtscript/internal/device"
	"dtscript/internal/results"
)

// OutputVar holds the output of the last command sent to the device.
const OutputVar = "_output"

// Builtins returns the operations every registry starts with. Their specs
// come from the built-in schema.
func Builtins() []Descriptor {
	return []Descriptor{
		{Name: "comment", Handler: comment},
		{Name: "setvar", Handler: setVar},
		{Name: "unsetvar", Handler: unsetVar},
		{Name: "incr", Handler: step(1)},
		{Name: "decr", Handler: step(-1)},
		{Name: "sleep", Handler: sleep},
		{Name: "send", Handler: send},
		{Name: "expect", Handler: expect},
		{Name: "capture", Handler: capture},
		{Name: "fail", Handler: fail},
		{Name: "stop", Handler: stop},
	}
}

func comment(c *Context, p *Params) (any, error) {
	text := p.String("text")
	c.Log.Info("comment", "text", text, "script", c.Script, "line", c.Line)
	return text, c.Record(results.Info, text)
}

func setVar(c *Context, p *Params) (any, error) {
	c.Vars.Set(p.String("name"), p.String("value"))
	return nil, nil
}

func unsetVar(c *Context, p *Params) (any, error) {
	c.Vars.Delete(p.String("name"))
	return nil, nil
}

func step(sign int) Handler {
	return func(c *Context, p *Params) (any, error) {
		name := p.String("name")
		n := 0
		if cur, ok := c.Vars.Get(name); ok && cur != "" {
			v, err := strconv.Atoi(cur)
			if err != nil {
				return nil, fmt.Errorf("variable %s holds %q, not an int", name, cur)
			}
			n = v
		}
		n += sign * p.Int("by")
		c.Vars.Set(name, strconv.Itoa(n))
		return n, nil
	}
}

func sleep(c *Context, p *Params) (any, error) {
	d := time.Duration(p.Int("seconds")) * time.Second
	if d <= 0 {
		return nil, nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil, nil
	case <-c.Ctx.Done():
		return nil, c.Ctx.Err()
	}
}

func send(c *Context, p *Params) (any, error) {
	return sendText(c, p.String("text"))
}

func sendText(c *Context, text string) (any, error) {
	if c.Session == nil {
		return nil, fmt.Errorf("%s: %w", c.Op, device.ErrNoSession)
	}
	out, err := c.Session.SendCommand(c.Ctx, text)
	if err != nil {
		return nil, err
	}
	c.Vars.Set(OutputVar, out)
	return out, nil
}

// expect never fails the script on a mismatch; the outcome goes to the
// result store and optionally into -var.
func expect(c *Context, p *Params) (any, error) {
	if c.Session == nil {
		return nil, fmt.Errorf("%s: %w", c.Op, device.ErrNoSession)
	}
	pattern := p.String("pattern")
	timeout := time.Duration(p.Int("timeout")) * time.Second
	ok, err := c.Session.AwaitPattern(c.Ctx, pattern, timeout, p.Bool("clear"))
	if err != nil {
		return nil, err
	}

	outcome, flag := results.Fail, "0"
	if ok {
		outcome, flag = results.Pass, "1"
	}
	if p.Has("var") {
		c.Vars.Set(p.String("var"), flag)
	}
	c.Log.Debug("expect", "pattern", pattern, "matched", ok, "device", c.Device)
	return ok, c.Record(outcome, pattern)
}

func capture(c *Context, p *Params) (any, error) {
	re, err := regexp.Compile(p.String("pattern"))
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	out, _ := c.Vars.Get(OutputVar)
	m := re.FindStringSubmatch(out)
	value := ""
	switch {
	case len(m) > 1:
		value = m[1]
	case len(m) == 1:
		value = m[0]
	}
	c.Vars.Set(p.String("var"), value)
	return value, nil
}

func fail(c *Context, p *Params) (any, error) {
	msg := p.String("message")
	if err := c.Record(results.Fail, msg); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%s", msg)
}

func stop(c *Context, p *Params) (any, error) {
	reason := p.String("reason")
	if reason == "" {
		reason = "stopped by script"
	}
	c.Abort(reason)
	return nil, nil
}
