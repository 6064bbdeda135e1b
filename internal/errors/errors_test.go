package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestScriptErrorFormat(t *testing.T) {
	err := NewRuntimeError(HandlerError, "link down", "lib/boot.dts", 4, 7).
		WithSource("show interfaces").
		AddStackFrame("main.dts", 2, 1).
		AddStackFrame("suite.dts", 9, -1)

	want := strings.Join([]string{
		"HandlerError: link down",
		"  at lib/boot.dts:4 (pc 7)",
		"",
		"  4 | show interfaces",
		"",
		"Include Stack:",
		"  included from main.dts:2 (pc 1)",
		"  included from suite.dts:9",
	}, "\n")
	if got := err.Error(); got != want {
		t.Errorf("Error() =\n%s\nwant\n%s", got, want)
	}
}

func TestCompileTimeErrorHasNoPC(t *testing.T) {
	err := NewSyntaxError("expected fi", "a.dts", 3)
	if err.PC != -1 {
		t.Errorf("PC = %d", err.PC)
	}
	if got := err.Error(); got != "SyntaxError: expected fi\n  at a.dts:3" {
		t.Errorf("Error() = %q", got)
	}
	if msg := NewUnknownOperationError("reboot", "a.dts", 1).Message; msg != "unknown operation 'reboot'" {
		t.Errorf("message = %q", msg)
	}
}

func TestIsAndAs(t *testing.T) {
	cause := stderrors.New("boom")
	err := fmt.Errorf("running: %w", NewRuntimeError(AbortError, "stop", "a.dts", 1, 0).WithCause(cause))

	if !Is(err, AbortError) || Is(err, HandlerError) {
		t.Error("Is did not see through wrapping")
	}
	se, ok := As(err)
	if !ok || se.Line() != 1 {
		t.Fatalf("As = %v, %v", se, ok)
	}
	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable")
	}
	if _, ok := As(cause); ok {
		t.Error("plain error matched")
	}
}
