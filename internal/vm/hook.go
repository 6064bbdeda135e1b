package vm

import (
	"fmt"
	"io"
	"strings"

	"dtscript/internal/bytecode"
)

// Hook observes execution. OnInstruction is called before each dispatch
// with the params as they will be dispatched.
type Hook interface {
	OnInstruction(pc int, code *bytecode.VMCode)
}

// HookFunc adapts a function to Hook.
type HookFunc func(pc int, code *bytecode.VMCode)

func (f HookFunc) OnInstruction(pc int, code *bytecode.VMCode) {
	f(pc, code)
}

// Tracer writes one line per executed instruction.
type Tracer struct {
	w      io.Writer
	prefix string
}

func NewTracer(w io.Writer, prefix string) *Tracer {
	return &Tracer{w: w, prefix: prefix}
}

func (t *Tracer) OnInstruction(pc int, code *bytecode.VMCode) {
	var sb strings.Builder
	if t.prefix != "" {
		sb.WriteString(t.prefix)
		sb.WriteByte(' ')
	}
	fmt.Fprintf(&sb, "%04d %s\n", pc, code)
	io.WriteString(t.w, sb.String())
}
