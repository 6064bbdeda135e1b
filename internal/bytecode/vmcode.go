package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// VMCode is a single compiled instruction. Params hold string, int or nil
// values; the parser appends jump targets while linking control blocks and
// nothing mutates them afterwards.
type VMCode struct {
	Line   int
	Op     string
	Params []any
}

func NewVMCode(line int, op string) *VMCode {
	return &VMCode{Line: line, Op: op, Params: []any{}}
}

// Append adds params at the end.
func (c *VMCode) Append(params ...any) {
	c.Params = append(c.Params, params...)
}

// Prepend inserts p as the first param.
func (c *VMCode) Prepend(p any) {
	c.Params = append([]any{p}, c.Params...)
}

// Target returns the trailing jump-target line.
func (c *VMCode) Target() (int, bool) {
	if len(c.Params) == 0 {
		return 0, false
	}
	n, ok := c.Params[len(c.Params)-1].(int)
	return n, ok
}

func (c *VMCode) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(c.Line))
	sb.WriteByte(' ')
	sb.WriteString(c.Op)
	for _, p := range c.Params {
		sb.WriteByte(' ')
		sb.WriteString(FormatParam(p))
	}
	return sb.String()
}

// FormatParam renders a param the way the dump format expects.
func FormatParam(p any) string {
	switch v := p.(type) {
	case nil:
		return "None"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

// IncludeRef records one include statement of a compiled script.
type IncludeRef struct {
	Raw      string // path after compile-time expansion; unresolvable placeholders kept
	Resolved string // absolute path after compile-time resolution
	Section  string // device section active at the include
	Line     int
}

// CompiledScript is the output of one compilation pass over a file.
type CompiledScript struct {
	Path         string
	Instructions []*VMCode
	Sections     []string
	Includes     []IncludeRef
}

// Emit appends a new instruction and returns it.
func (s *CompiledScript) Emit(line int, op string) *VMCode {
	code := NewVMCode(line, op)
	s.Instructions = append(s.Instructions, code)
	return code
}

// AddSection records a device section name once.
func (s *CompiledScript) AddSection(name string) {
	for _, existing := range s.Sections {
		if existing == name {
			return
		}
	}
	s.Sections = append(s.Sections, name)
}

// AddInclude records an include once per (path, section).
func (s *CompiledScript) AddInclude(ref IncludeRef) {
	for _, existing := range s.Includes {
		if existing.Raw == ref.Raw && existing.Section == ref.Section {
			return
		}
	}
	s.Includes = append(s.Includes, ref)
}

// Dump renders one instruction per line: "<line> <op> <param> ...".
func (s *CompiledScript) Dump() string {
	var sb strings.Builder
	for _, code := range s.Instructions {
		sb.WriteString(code.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Len returns the instruction count.
func (s *CompiledScript) Len() int {
	return len(s.Instructions)
}
