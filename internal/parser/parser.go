// internal/parser/parser.go
package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"dtscript/internal/bytecode"
	"dtscript/internal/errors"
	"dtscript/internal/lexer"
	"dtscript/internal/syntax"
)

// Options controls error recovery.
type Options struct {
	// Lenient records line-level syntax errors in Diagnostics and skips the
	// offending statement. The zero value aborts on the first error.
	Lenient bool
	Logger  *slog.Logger
}

// statement is a primary token plus the argument tokens on its line.
type statement struct {
	head lexer.Token
	args []lexer.Token
}

type Parser struct {
	schema      *syntax.Schema
	opts        Options
	log         *slog.Logger
	file        string
	sourceLines []string
	tokens      []lexer.Token
	current     int
	section     string
	script      *bytecode.CompiledScript
	fatal       bool

	// Diagnostics holds the errors skipped in non-strict mode.
	Diagnostics []error
}

func NewParser(schema *syntax.Schema, opts Options) *Parser {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Parser{schema: schema, opts: opts, log: log}
}

// WithSource attaches the source text so errors can quote the failing line.
func (p *Parser) WithSource(source string) *Parser {
	p.sourceLines = strings.Split(source, "\n")
	return p
}

// Parse compiles a token stream into a CompiledScript. No partial script is
// returned on error.
func (p *Parser) Parse(file string, tokens []lexer.Token) (*bytecode.CompiledScript, error) {
	p.file = file
	p.tokens = tokens
	p.current = 0
	p.section = ""
	p.fatal = false
	p.Diagnostics = nil
	p.script = &bytecode.CompiledScript{Path: file}

	for !p.isAtEnd() {
		st := p.next()
		if err := p.topLevel(st); err != nil {
			if !p.recover(err) {
				return nil, err
			}
		}
	}
	return p.script, nil
}

func (p *Parser) topLevel(st statement) error {
	if st.head.Type == lexer.TokenKeyword {
		rule, err := p.schema.Resolve(st.head, p.file)
		if err != nil {
			return p.located(err, st.head.Line)
		}
		if !rule.Keyword.Opener {
			return p.errorf(st.head.Line, "dangling terminator <%s>: no open block", st.head.Text)
		}
		return p.parseBlock(rule.Keyword, st, nil, nil)
	}
	return p.simpleStatement(st)
}

// parseBlock emits the instruction for keyword kw and follows its flow.
// prev is the instruction of the previous block in the chain; it receives
// this keyword's line as its jump target. opener is the innermost loop head,
// whose line is handed to backward-linking terminators.
func (p *Parser) parseBlock(kw *syntax.KeywordSpec, st statement, prev, opener *bytecode.VMCode) error {
	code := p.script.Emit(st.head.Line, kw.Op())
	if prev != nil {
		prev.Append(code.Line)
	}
	if kw.BackLink {
		if opener == nil {
			return p.errorf(st.head.Line, "<%s> outside of a loop", kw.Name)
		}
		code.Prepend(opener.Line)
	}
	if kw.Kind == syntax.KindLoop {
		opener = code
	}

	flow := kw.Flow
	if len(flow) > 0 && flow[0].Expr {
		cond, err := p.condition(st, flow[0].Optional)
		if err != nil {
			p.fatal = true
			return err
		}
		code.Append(cond...)
		flow = flow[1:]
	} else if len(st.args) > 0 {
		p.fatal = true
		return p.errorf(st.head.Line, "<%s> takes no expression", kw.Name)
	}

	if len(flow) > 0 && flow[0].Body {
		flow = flow[1:]
	}
	if len(flow) == 0 {
		return nil
	}

	term, err := p.parseBody(flow[0].Terminators)
	if err != nil {
		return err
	}
	next, _ := p.schema.Keyword(term.head.Text)
	return p.parseBlock(next, term, code, opener)
}

// parseBody parses statements until one of terms is reached and returns
// that terminator statement.
func (p *Parser) parseBody(terms []string) (statement, error) {
	for !p.isAtEnd() {
		st := p.next()
		if st.head.Type != lexer.TokenKeyword {
			if err := p.simpleStatement(st); err != nil && !p.recover(err) {
				return statement{}, err
			}
			continue
		}

		rule, err := p.schema.Resolve(st.head, p.file)
		if err != nil {
			if err = p.located(err, st.head.Line); !p.recover(err) {
				return statement{}, err
			}
			continue
		}
		for _, t := range terms {
			if t == rule.Keyword.Name {
				return st, nil
			}
		}
		if !rule.Keyword.Opener {
			err := p.errorf(st.head.Line, "unexpected <%s>: expected %s", st.head.Text, expectList(terms))
			if !p.recover(err) {
				return statement{}, err
			}
			continue
		}
		if err := p.parseBlock(rule.Keyword, st, nil, nil); err != nil {
			return statement{}, err
		}
	}

	p.fatal = true
	return statement{}, p.errorf(p.lastLine(), "missing terminator: expected %s", expectList(terms))
}

func expectList(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = "<" + t + ">"
	}
	return strings.Join(quoted, " or ")
}

// condition parses "operand op operand" triples joined by and/or.
func (p *Parser) condition(st statement, optional bool) ([]any, error) {
	args := st.args
	if len(args) == 0 {
		if optional {
			return nil, nil
		}
		return nil, p.errorf(st.head.Line, "<%s> requires a condition", st.head.Text)
	}

	var out []any
	for {
		if len(args) < 3 {
			return nil, p.errorf(st.head.Line, "malformed condition in <%s>: expected 'value operator value'", st.head.Text)
		}
		left, op, right := args[0], args[1], args[2]
		if !isOperand(left) || !isOperand(right) {
			return nil, p.errorf(st.head.Line, "malformed condition in <%s>: bad operand", st.head.Text)
		}
		if op.Type != lexer.TokenOperator || isConjunction(op.Text) {
			return nil, p.errorf(st.head.Line, "malformed condition in <%s>: '%s' is not a comparison operator", st.head.Text, op.Text)
		}
		out = append(out, left.Text, op.Text, right.Text)
		args = args[3:]
		if len(args) == 0 {
			return out, nil
		}
		if args[0].Type != lexer.TokenOperator || !isConjunction(args[0].Text) {
			return nil, p.errorf(st.head.Line, "malformed condition in <%s>: expected 'and' or 'or', got '%s'", st.head.Text, args[0].Text)
		}
		out = append(out, args[0].Text)
		args = args[1:]
	}
}

func isOperand(t lexer.Token) bool {
	switch t.Type {
	case lexer.TokenVariable, lexer.TokenIdentifier, lexer.TokenNumber, lexer.TokenString:
		return true
	}
	return false
}

func isConjunction(s string) bool {
	return s == "and" || s == "or"
}

func (p *Parser) simpleStatement(st statement) error {
	switch st.head.Type {
	case lexer.TokenComment:
		return nil

	case lexer.TokenSection:
		if st.head.Text == "" {
			return p.errorf(st.head.Line, "empty section header")
		}
		p.section = st.head.Text
		p.script.AddSection(st.head.Text)
		p.script.Emit(st.head.Line, bytecode.OpDevice).Append(st.head.Text)
		return nil

	case lexer.TokenCommand:
		p.script.Emit(st.head.Line, bytecode.OpCommand).Append(st.head.Text)
		return nil

	case lexer.TokenInclude:
		path := st.head.Text
		if path == "" {
			return p.errorf(st.head.Line, "include requires a path")
		}
		if strings.Contains(path, "$") {
			return p.errorf(st.head.Line, "include path '%s' references a runtime variable", path)
		}
		p.script.Emit(st.head.Line, bytecode.OpInclude).Append(path)
		p.script.AddInclude(bytecode.IncludeRef{Raw: path, Section: p.section, Line: st.head.Line})
		return nil

	case lexer.TokenAPI:
		rule, err := p.schema.Resolve(st.head, p.file)
		if err != nil {
			return p.located(err, st.head.Line)
		}
		var params []any
		if rule.Dispatch == syntax.ParseOptions {
			params, err = p.bindOptions(rule.Operation, st)
		} else {
			params, err = p.bindPositional(rule.Operation, st)
		}
		if err != nil {
			return err
		}
		p.script.Emit(st.head.Line, rule.Operation.Name).Append(params...)
		return nil
	}
	return p.errorf(st.head.Line, "unknown token type %s", st.head.Type)
}

func (p *Parser) bindPositional(op *syntax.OperationSpec, st statement) ([]any, error) {
	var params []any
	args := st.args
	for _, spec := range op.Params {
		if len(args) == 0 {
			if spec.Required {
				return nil, p.errorf(st.head.Line, "%s: missing required parameter '%s'", op.Name, spec.Alias)
			}
			break
		}
		if spec.Rest {
			words := make([]string, len(args))
			for i, t := range args {
				words[i] = t.Text
			}
			params = append(params, strings.Join(words, " "))
			args = nil
			break
		}
		v, err := p.value(op, spec, args[0])
		if err != nil {
			return nil, err
		}
		params = append(params, v)
		args = args[1:]
	}
	if len(args) > 0 {
		return nil, p.errorf(st.head.Line, "%s: takes at most %d parameters, got %d", op.Name, len(op.Params), len(st.args))
	}
	return params, nil
}

func (p *Parser) bindOptions(op *syntax.OperationSpec, st statement) ([]any, error) {
	params := make([]any, len(op.Params))
	set := make([]bool, len(op.Params))
	args := st.args
	for len(args) > 0 {
		flag := args[0]
		if flag.Type != lexer.TokenIdentifier || !strings.HasPrefix(flag.Text, "-") {
			return nil, p.errorf(st.head.Line, "%s: expected an option flag, got '%s'", op.Name, flag.Text)
		}
		spec, ok := op.Param(strings.TrimPrefix(flag.Text, "-"))
		if !ok {
			return nil, p.errorf(st.head.Line, "%s: unknown option '%s'", op.Name, flag.Text)
		}
		if set[spec.Position] {
			return nil, p.errorf(st.head.Line, "%s: option '%s' given twice", op.Name, flag.Text)
		}
		if len(args) < 2 {
			return nil, p.errorf(st.head.Line, "%s: option '%s' needs a value", op.Name, flag.Text)
		}
		v, err := p.value(op, spec, args[1])
		if err != nil {
			return nil, err
		}
		params[spec.Position] = v
		set[spec.Position] = true
		args = args[2:]
	}

	last := -1
	for i, spec := range op.Params {
		if set[i] {
			last = i
		} else if spec.Required {
			return nil, p.errorf(st.head.Line, "%s: missing required option '-%s'", op.Name, spec.Alias)
		}
	}
	return params[:last+1], nil
}

func (p *Parser) value(op *syntax.OperationSpec, spec syntax.ParamSpec, t lexer.Token) (any, error) {
	if spec.Type != syntax.TypeInt || strings.Contains(t.Text, "$") {
		return t.Text, nil
	}
	n, err := strconv.Atoi(t.Text)
	if err != nil {
		return nil, p.errorf(t.Line, "%s: parameter '%s' expects an int, got '%s'", op.Name, spec.Alias, t.Text)
	}
	return n, nil
}

// --- Utility methods ---

func (p *Parser) recover(err error) bool {
	if !p.opts.Lenient || p.fatal {
		return false
	}
	p.log.Warn("skipping statement", "file", p.file, "error", err)
	p.Diagnostics = append(p.Diagnostics, err)
	return true
}

func (p *Parser) errorf(line int, format string, args ...any) error {
	err := errors.NewSyntaxError(fmt.Sprintf(format, args...), p.file, line)
	return p.withSource(err)
}

func (p *Parser) located(err error, line int) error {
	if se, ok := errors.As(err); ok {
		se.Location.File = p.file
		se.Location.Line = line
		return p.withSource(se)
	}
	return err
}

func (p *Parser) withSource(err *errors.ScriptError) *errors.ScriptError {
	line := err.Location.Line
	if p.sourceLines != nil && line > 0 && line <= len(p.sourceLines) {
		err = err.WithSource(strings.TrimRight(p.sourceLines[line-1], "\r"))
	}
	return err
}

func (p *Parser) next() statement {
	st := statement{head: p.tokens[p.current]}
	p.current++
	for !p.isAtEnd() && !p.tokens[p.current].IsPrimary() {
		st.args = append(st.args, p.tokens[p.current])
		p.current++
	}
	return st
}

func (p *Parser) lastLine() int {
	if len(p.tokens) == 0 {
		return 0
	}
	return p.tokens[len(p.tokens)-1].Line
}

func (p *Parser) isAtEnd() bool {
	return p.current >= len(p.tokens)
}
