// Package syntax holds the schema that drives both lexing and parsing: the
// available operations with their parameter shapes and the control-flow
// keywords with their block flow.
package syntax

import (
	"sort"

	"dtscript/internal/bytecode"
	"dtscript/internal/errors"
	"dtscript/internal/lexer"
)

// Mode selects how an operation's arguments are bound.
type Mode string

const (
	Positional Mode = "positional"
	Options    Mode = "options"
)

// ParamType is the declared type of an operation parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
)

// ParamSpec describes one parameter slot of an operation.
type ParamSpec struct {
	Alias    string
	Position int
	Required bool
	Default  any // string, int or nil
	Type     ParamType
	Rest     bool // positional only: swallow the remaining words
}

// OperationSpec describes how an API operation is parsed.
type OperationSpec struct {
	Name   string
	Mode   Mode
	Params []ParamSpec // ordered by Position
}

// Param looks a slot up by alias.
func (o *OperationSpec) Param(alias string) (ParamSpec, bool) {
	for _, p := range o.Params {
		if p.Alias == alias {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// DefaultOperation is the spec given to operations discovered at runtime
// without a schema entry of their own.
func DefaultOperation(name string) *OperationSpec {
	return &OperationSpec{
		Name: name,
		Mode: Positional,
		Params: []ParamSpec{
			{Alias: "args", Position: 0, Type: TypeString, Rest: true},
		},
	}
}

// Kind is the closed set of control-flow keyword kinds.
type Kind int

const (
	KindIf Kind = iota + 1
	KindElseIf
	KindElse
	KindFi
	KindLoop
	KindEndWhile
	KindUntil
)

var kindNames = map[string]Kind{
	"if":       KindIf,
	"elseif":   KindElseIf,
	"else":     KindElse,
	"fi":       KindFi,
	"loop":     KindLoop,
	"endwhile": KindEndWhile,
	"until":    KindUntil,
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Op returns the VM op a keyword of this kind compiles to.
func (k Kind) Op() string {
	switch k {
	case KindIf:
		return bytecode.OpIfNotGoto
	case KindElseIf:
		return bytecode.OpElseIf
	case KindElse:
		return bytecode.OpElse
	case KindFi:
		return bytecode.OpFi
	case KindLoop:
		return bytecode.OpLoop
	case KindEndWhile:
		return bytecode.OpEndWhile
	case KindUntil:
		return bytecode.OpUntil
	}
	return ""
}

// FlowElem is one step of a keyword's block flow.
type FlowElem struct {
	Expr        bool
	Optional    bool // only meaningful with Expr
	Body        bool
	Terminators []string
}

// IsTerminatorSet reports whether the element lists closing keywords.
func (f FlowElem) IsTerminatorSet() bool {
	return len(f.Terminators) > 0
}

// KeywordSpec is the flow shape of a control-flow keyword.
type KeywordSpec struct {
	Name     string
	Kind     Kind
	Flow     []FlowElem
	BackLink bool // terminator jumps back to the opening loop line
	Opener   bool // may start a block at statement level
}

// Op is the VM op emitted for this keyword.
func (k *KeywordSpec) Op() string {
	return k.Kind.Op()
}

// DispatchKind tells the parser which routine handles a token.
type DispatchKind int

const (
	ParsePositional DispatchKind = iota
	ParseOptions
	ControlBlock
)

// Rule is the resolution of a primary token against the schema.
type Rule struct {
	Dispatch  DispatchKind
	Operation *OperationSpec
	Keyword   *KeywordSpec
}

// Schema is immutable once built; Refresh and Merge return new values.
type Schema struct {
	operations map[string]*OperationSpec
	keywords   map[string]*KeywordSpec
}

func newSchema() *Schema {
	return &Schema{
		operations: make(map[string]*OperationSpec),
		keywords:   make(map[string]*KeywordSpec),
	}
}

func (s *Schema) Operation(name string) (*OperationSpec, bool) {
	op, ok := s.operations[name]
	return op, ok
}

func (s *Schema) Keyword(name string) (*KeywordSpec, bool) {
	kw, ok := s.keywords[name]
	return kw, ok
}

// OperationNames returns every operation name, longest first.
func (s *Schema) OperationNames() []string {
	return longestFirst(s.operations)
}

// KeywordNames returns every keyword name, longest first.
func (s *Schema) KeywordNames() []string {
	return longestFirst(s.keywords)
}

func longestFirst[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

// Resolve maps a primary token to the routine that parses it.
func (s *Schema) Resolve(tok lexer.Token, file string) (Rule, error) {
	switch tok.Type {
	case lexer.TokenKeyword:
		if kw, ok := s.keywords[tok.Text]; ok {
			return Rule{Dispatch: ControlBlock, Keyword: kw}, nil
		}
	case lexer.TokenAPI:
		if op, ok := s.operations[tok.Text]; ok {
			if op.Mode == Options {
				return Rule{Dispatch: ParseOptions, Operation: op}, nil
			}
			return Rule{Dispatch: ParsePositional, Operation: op}, nil
		}
	default:
		return Rule{}, errors.NewSyntaxError("unexpected "+string(tok.Type)+" token '"+tok.Text+"'", file, tok.Line)
	}
	return Rule{}, errors.NewUnknownOperationError(tok.Text, file, tok.Line)
}

// Merge returns a schema with the given operations added. Names already
// present keep their existing spec, so merging is idempotent.
func (s *Schema) Merge(specs []*OperationSpec) *Schema {
	added := false
	for _, spec := range specs {
		if _, ok := s.operations[spec.Name]; !ok {
			added = true
			break
		}
	}
	if !added {
		return s
	}

	out := newSchema()
	for name, op := range s.operations {
		out.operations[name] = op
	}
	for name, kw := range s.keywords {
		out.keywords[name] = kw
	}
	for _, spec := range specs {
		if _, ok := out.operations[spec.Name]; !ok {
			out.operations[spec.Name] = spec
		}
	}
	return out
}

// Refresh adds a default spec for every name the schema does not know yet.
func (s *Schema) Refresh(names []string) *Schema {
	specs := make([]*OperationSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, DefaultOperation(name))
	}
	return s.Merge(specs)
}
