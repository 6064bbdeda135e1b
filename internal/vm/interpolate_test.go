package vm

import (
	"io"
	"log/slog"
	"testing"

	"dtscript/internal/bytecode"
	"dtscript/internal/config"
	"dtscript/internal/errors"
)

func interpolator(vars map[string]string, policy config.MissingPolicy) *Executor {
	script := &bytecode.CompiledScript{Path: "t.dts"}
	script.Emit(1, "comment")
	return New(script,
		WithVars(vars),
		WithMissingPolicy(policy),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestInterpolate(t *testing.T) {
	e := interpolator(map[string]string{
		"host": "10.0.0.1",
		"port": "22",
		"ref":  "$port",
		"tpl":  "{$host}",
	}, config.MissingIgnore)

	tests := []struct {
		in, want string
	}{
		{"no variables", "no variables"},
		{"ssh $host", "ssh 10.0.0.1"},
		{"{$host}:{$port}", "10.0.0.1:22"},
		{"${host}", "${host}"},
		{"$host-$port", "10.0.0.1-22"},
		{"{$host}$port", "10.0.0.122"},
		// substituted values are not expanded again
		{"{$ref} $ref", "$port $port"},
		{"{$tpl}", "{$host}"},
		{"cost $5", "cost $5"},
		{"$missing {$missing}", "$missing {$missing}"},
		{"{DUT:model}", "{DUT:model}"},
	}
	for _, tt := range tests {
		got, err := e.interpolate(tt.in)
		if err != nil {
			t.Errorf("%q: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("interpolate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInterpolateMissingError(t *testing.T) {
	e := interpolator(nil, config.MissingError)
	_, err := e.interpolate("value {$x}")
	se, ok := errors.As(err)
	if !ok || se.Type != errors.MissingVariable || se.Message != "variable 'x' is not set" {
		t.Fatalf("err = %v", err)
	}
	if se.Line() != 1 || se.PC != 0 {
		t.Errorf("line %d pc %d", se.Line(), se.PC)
	}
}

func TestInterpolateParamsSkipsContextSwitch(t *testing.T) {
	e := interpolator(map[string]string{"x": "1"}, config.MissingError)

	got, err := e.interpolateParams(bytecode.OpInclude, []any{"lib/$x.dts"})
	if err != nil || got[0] != "lib/$x.dts" {
		t.Errorf("include = %v, %v", got, err)
	}
	params := []any{"$x", 7, nil}
	got, err = e.interpolateParams("setvar", params)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != "1" || got[1] != 7 || got[2] != nil {
		t.Errorf("setvar = %v", got)
	}
	if params[0] != "$x" {
		t.Error("instruction params modified")
	}
}
