package parser

import (
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"dtscript/internal/bytecode"
	"dtscript/internal/errors"
	"dtscript/internal/lexer"
	"dtscript/internal/syntax"
)

var update = flag.Bool("update", false, "rewrite golden files")

// Test helper to compile a string with the built-in schema
func parseString(t *testing.T, input string, lenient bool) (*bytecode.CompiledScript, *Parser, error) {
	t.Helper()
	schema := syntax.Default()
	tokens := lexer.New(schema).TokenizeSource(input)
	p := NewParser(schema, Options{Lenient: lenient}).WithSource(input)
	script, err := p.Parse("test.dts", tokens)
	return script, p, err
}

func mustParse(t *testing.T, input string) *bytecode.CompiledScript {
	t.Helper()
	script, _, err := parseString(t, input, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return script
}

func find(t *testing.T, script *bytecode.CompiledScript, line int) *bytecode.VMCode {
	t.Helper()
	for _, code := range script.Instructions {
		if code.Line == line {
			return code
		}
	}
	t.Fatalf("no instruction at line %d in\n%s", line, script.Dump())
	return nil
}

func TestForwardLinks(t *testing.T) {
	src := strings.Join([]string{
		"<if {$a} eq 1>",
		"comment one",
		"<elseif {$a} eq 2>",
		"comment two",
		"<else>",
		"comment other",
		"<fi>",
	}, "\n")
	script := mustParse(t, src)

	tests := []struct {
		line   int
		op     string
		params []any
	}{
		{1, "if_not_goto", []any{"{$a}", "eq", "1", 3}},
		{3, "elseif", []any{"{$a}", "eq", "2", 5}},
		{5, "else", []any{7}},
		{7, "fi", []any{}},
	}
	for _, tt := range tests {
		code := find(t, script, tt.line)
		if code.Op != tt.op || !reflect.DeepEqual(code.Params, tt.params) {
			t.Errorf("line %d = %s, want %s %v", tt.line, code, tt.op, tt.params)
		}
	}
}

func TestForwardLinksSkipNestedBlocks(t *testing.T) {
	src := strings.Join([]string{
		"<if $a eq 1>",
		"<if $b eq 1>",
		"comment inner",
		"<else>",
		"comment inner else",
		"<endif>",
		"<else>",
		"comment outer else",
		"<fi>",
	}, "\n")
	script := mustParse(t, src)

	if target, _ := find(t, script, 1).Target(); target != 7 {
		t.Errorf("outer if target = %d, want 7", target)
	}
	if target, _ := find(t, script, 2).Target(); target != 4 {
		t.Errorf("inner if target = %d, want 4", target)
	}
	if target, _ := find(t, script, 4).Target(); target != 6 {
		t.Errorf("inner else target = %d, want 6", target)
	}
	if target, _ := find(t, script, 7).Target(); target != 9 {
		t.Errorf("outer else target = %d, want 9", target)
	}
}

func TestBackwardLinks(t *testing.T) {
	for body := 0; body <= 5; body++ {
		lines := []string{"setvar n 0", "<loop>"}
		for i := 0; i < body; i++ {
			lines = append(lines, "incr n")
		}
		lines = append(lines, "<until {$n} ge 3>")
		script := mustParse(t, strings.Join(lines, "\n"))

		until := len(lines)
		code := find(t, script, until)
		if code.Op != "until" || code.Params[0] != 2 {
			t.Errorf("body %d: until = %s, want first param 2", body, code)
		}
		if loop := find(t, script, 2); !reflect.DeepEqual(loop.Params, []any{until}) {
			t.Errorf("body %d: loop = %s, want target %d", body, loop, until)
		}
	}
}

func TestWhileGuard(t *testing.T) {
	script := mustParse(t, "<while {$n} lt 3>\nincr n\n<endwhile>")

	loop := find(t, script, 1)
	if !reflect.DeepEqual(loop.Params, []any{"{$n}", "lt", "3", 3}) {
		t.Errorf("loop = %s", loop)
	}
	end := find(t, script, 3)
	if end.Op != "endwhile" || !reflect.DeepEqual(end.Params, []any{1}) {
		t.Errorf("endwhile = %s", end)
	}
}

func TestNestedLoopsLinkToInnermost(t *testing.T) {
	src := strings.Join([]string{
		"<while 1 eq 1>",
		"<loop>",
		"incr i",
		"<until {$i} eq 2>",
		"<endwhile {$j} eq 1>",
	}, "\n")
	script := mustParse(t, src)

	if p := find(t, script, 4).Params[0]; p != 2 {
		t.Errorf("until links to %v, want 2", p)
	}
	if p := find(t, script, 5).Params[0]; p != 1 {
		t.Errorf("endwhile links to %v, want 1", p)
	}
	if target, _ := find(t, script, 1).Target(); target != 5 {
		t.Errorf("while target = %d, want 5", target)
	}
}

func TestConditionChain(t *testing.T) {
	script := mustParse(t, "<if $a eq 1 and {$b} contains \"x y\" or $c match ^ok>\n<fi>")
	want := []any{"$a", "eq", "1", "and", "{$b}", "contains", "x y", "or", "$c", "match", "^ok", 2}
	if got := find(t, script, 1).Params; !reflect.DeepEqual(got, want) {
		t.Errorf("params = %v, want %v", got, want)
	}
}

func TestDanglingTerminator(t *testing.T) {
	_, _, err := parseString(t, "comment a\n\n<fi>\ncomment b", false)
	se, ok := errors.As(err)
	if !ok || se.Type != errors.SyntaxError {
		t.Fatalf("err = %v, want SyntaxError", err)
	}
	if se.Line() != 3 {
		t.Errorf("line = %d, want 3", se.Line())
	}
	if !strings.Contains(se.Message, "<fi>") {
		t.Errorf("message %q does not cite <fi>", se.Message)
	}
	if se.Source != "<fi>" {
		t.Errorf("source = %q", se.Source)
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		errType errors.ErrorType
		line    int
		want    string
	}{
		{"missing terminator", "<if $a eq 1>\ncomment a", errors.SyntaxError, 2, "expected <elseif> or <else> or <fi> or <endif>"},
		{"wrong terminator", "<if $a eq 1>\n<endwhile>\n<fi>", errors.SyntaxError, 2, "unexpected <endwhile>"},
		{"until outside loop", "<until $a eq 1>", errors.SyntaxError, 1, "dangling terminator <until>"},
		{"unknown keyword", "comment a\n<switch $a>", errors.UnknownOperationError, 2, "switch"},
		{"missing condition", "<if>\n<fi>", errors.SyntaxError, 1, "requires a condition"},
		{"malformed condition", "<if $a eq>\n<fi>", errors.SyntaxError, 1, "malformed condition"},
		{"conjunction as operator", "<if $a and 1>\n<fi>", errors.SyntaxError, 1, "not a comparison operator"},
		{"dangling conjunction", "<if $a eq 1 and>\n<fi>", errors.SyntaxError, 1, "malformed condition"},
		{"else with expression", "<if $a eq 1>\n<else $b eq 2>\n<fi>", errors.SyntaxError, 2, "takes no expression"},
		{"missing required", "sleep", errors.SyntaxError, 1, "missing required parameter 'seconds'"},
		{"too many", "unsetvar a b", errors.SyntaxError, 1, "takes at most 1"},
		{"not an int", "sleep soon", errors.SyntaxError, 1, "expects an int"},
		{"unknown option", "send -txt hi", errors.SyntaxError, 1, "unknown option '-txt'"},
		{"repeated option", "send -text a -text b", errors.SyntaxError, 1, "given twice"},
		{"option without value", "expect -pattern", errors.SyntaxError, 1, "needs a value"},
		{"missing option", "expect -timeout 3", errors.SyntaxError, 1, "missing required option '-pattern'"},
		{"positional value for options", "send hello", errors.SyntaxError, 1, "expected an option flag"},
		{"include without path", "include", errors.SyntaxError, 1, "requires a path"},
		{"include with runtime variable", "include lib/{$model}.dts", errors.SyntaxError, 1, "runtime variable"},
		{"empty section", "[ ]", errors.SyntaxError, 1, "empty section"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, _, err := parseString(t, tt.src, false)
			if script != nil {
				t.Error("partial script returned with error")
			}
			se, ok := errors.As(err)
			if !ok {
				t.Fatalf("err = %v, want *ScriptError", err)
			}
			if se.Type != tt.errType {
				t.Errorf("type = %s, want %s", se.Type, tt.errType)
			}
			if se.Line() != tt.line {
				t.Errorf("line = %d, want %d", se.Line(), tt.line)
			}
			if !strings.Contains(se.Message, tt.want) {
				t.Errorf("message %q does not contain %q", se.Message, tt.want)
			}
		})
	}
}

func TestZeroOptionsAreStrict(t *testing.T) {
	schema := syntax.Default()
	src := "<fi>\nsetvar x 1"
	p := NewParser(schema, Options{}).WithSource(src)
	_, err := p.Parse("test.dts", lexer.New(schema).TokenizeSource(src))
	se, ok := errors.As(err)
	if !ok || se.Type != errors.SyntaxError || se.Line() != 1 {
		t.Fatalf("err = %v, want SyntaxError at line 1", err)
	}
	if len(p.Diagnostics) != 0 {
		t.Errorf("diagnostics = %v", p.Diagnostics)
	}
}

func TestLenientSkipsBadLines(t *testing.T) {
	src := strings.Join([]string{
		"unsetvar a b",
		"comment ok",
		"<bogus>",
		"<if $a eq 1>",
		"sleep soon",
		"<fi>",
		"send -text hi",
	}, "\n")
	script, p, err := parseString(t, src, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Diagnostics) != 3 {
		t.Errorf("diagnostics = %v, want 3", p.Diagnostics)
	}

	var ops []string
	for _, code := range script.Instructions {
		ops = append(ops, code.Op)
	}
	want := []string{"comment", "if_not_goto", "fi", "send"}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("ops = %v, want %v", ops, want)
	}
}

func TestLenientKeepsStructuralErrorsFatal(t *testing.T) {
	for _, src := range []string{
		"<if $a eq 1>\ncomment a",
		"<while $a>\n<endwhile>",
	} {
		if _, _, err := parseString(t, src, true); !errors.Is(err, errors.SyntaxError) {
			t.Errorf("%q: err = %v, want SyntaxError", src, err)
		}
	}
}

func TestBinding(t *testing.T) {
	tests := []struct {
		src  string
		want []any
	}{
		{"setvar greeting hello there world", []any{"greeting", "hello there world"}},
		{"setvar empty", []any{"empty"}},
		{`setvar quoted "a  b"`, []any{"quoted", "a  b"}},
		{"sleep 3", []any{3}},
		{"sleep $delay", []any{"$delay"}},
		{"incr n 2", []any{"n", 2}},
		{"stop", nil},
		{`expect -pattern "ok" -var res`, []any{"ok", nil, nil, "res"}},
		{"expect -pattern ok", []any{"ok"}},
		{"expect -timeout 5 -pattern x", []any{"x", 5}},
		{"send -text {$cmd}", []any{"{$cmd}"}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			script := mustParse(t, tt.src)
			got := script.Instructions[0].Params
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("params = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSectionsAndIncludes(t *testing.T) {
	src := strings.Join([]string{
		"include lib/common.dts",
		"[DUT]",
		"show version",
		"include lib/{DUT:model}.dts",
		"[PEER]",
		"[DUT]",
		"include lib/common.dts",
	}, "\n")
	script := mustParse(t, src)

	if !reflect.DeepEqual(script.Sections, []string{"DUT", "PEER"}) {
		t.Errorf("sections = %v", script.Sections)
	}
	want := []bytecode.IncludeRef{
		{Raw: "lib/common.dts", Section: "", Line: 1},
		{Raw: "lib/{DUT:model}.dts", Section: "DUT", Line: 4},
		{Raw: "lib/common.dts", Section: "DUT", Line: 7},
	}
	if !reflect.DeepEqual(script.Includes, want) {
		t.Errorf("includes = %+v\nwant %+v", script.Includes, want)
	}
	if code := find(t, script, 2); code.Op != "device" || code.Params[0] != "DUT" {
		t.Errorf("section compiled to %s", code)
	}
	if code := find(t, script, 3); code.Op != "command" || code.Params[0] != "show version" {
		t.Errorf("command compiled to %s", code)
	}
}

func TestCommentsEmitNothing(t *testing.T) {
	script := mustParse(t, "# one\n   # two\n")
	if script.Len() != 0 {
		t.Errorf("got %d instructions", script.Len())
	}
}

func TestDumpGolden(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "control_flow.dts"))
	if err != nil {
		t.Fatal(err)
	}
	script := mustParse(t, string(src))
	got := script.Dump()

	golden := filepath.Join("testdata", "control_flow.golden")
	if *update {
		if err := os.WriteFile(golden, []byte(got), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	want, err := os.ReadFile(golden)
	if err != nil {
		t.Fatal(err)
	}
	if got != string(want) {
		t.Errorf("dump mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}
