package syntax

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed syntax.yaml
var defaultSchema []byte

// document mirrors the on-disk schema format.
type document struct {
	Operations map[string]operationDoc `yaml:"operations"`
	Keywords   map[string]keywordDoc   `yaml:"keywords"`
}

type operationDoc struct {
	Mode   string     `yaml:"mode"`
	Params []paramDoc `yaml:"params"`
}

type paramDoc struct {
	Alias    string `yaml:"alias"`
	Position *int   `yaml:"position"`
	Required bool   `yaml:"required"`
	Default  any    `yaml:"default"`
	Type     string `yaml:"type"`
	Rest     bool   `yaml:"rest"`
}

type keywordDoc struct {
	Kind     string `yaml:"kind"`
	Flow     []any  `yaml:"flow"`
	BackLink bool   `yaml:"backlink"`
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Default returns the built-in schema.
func Default() *Schema {
	s, err := Load(bytes.NewReader(defaultSchema))
	if err != nil {
		panic(fmt.Sprintf("built-in schema is invalid: %v", err))
	}
	return s
}

// LoadFile reads and validates a schema document from disk.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open schema")
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s", path)
	}
	return s, nil
}

// Load decodes and validates a schema document.
func Load(r io.Reader) (*Schema, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}

	s := newSchema()
	for name, od := range doc.Operations {
		op, err := buildOperation(name, od)
		if err != nil {
			return nil, err
		}
		s.operations[name] = op
	}
	for name, kd := range doc.Keywords {
		kw, err := buildKeyword(name, kd)
		if err != nil {
			return nil, err
		}
		s.keywords[name] = kw
	}
	if err := s.validateKeywords(); err != nil {
		return nil, err
	}
	for name := range s.operations {
		if _, clash := s.keywords[name]; clash {
			return nil, errors.Errorf("'%s' is both an operation and a keyword", name)
		}
	}
	return s, nil
}

func buildOperation(name string, od operationDoc) (*OperationSpec, error) {
	if !namePattern.MatchString(name) {
		return nil, errors.Errorf("operation name '%s' is not an identifier", name)
	}
	op := &OperationSpec{Name: name, Mode: Mode(od.Mode)}
	switch op.Mode {
	case "":
		op.Mode = Positional
	case Positional, Options:
	default:
		return nil, errors.Errorf("operation %s: unknown mode '%s'", name, od.Mode)
	}

	seen := make(map[string]bool)
	for i, pd := range od.Params {
		p := ParamSpec{
			Alias:    pd.Alias,
			Position: i,
			Required: pd.Required,
			Type:     ParamType(pd.Type),
			Rest:     pd.Rest,
		}
		if pd.Position != nil {
			p.Position = *pd.Position
		}
		if !namePattern.MatchString(p.Alias) {
			return nil, errors.Errorf("operation %s: param %d has invalid alias '%s'", name, i, p.Alias)
		}
		if seen[p.Alias] {
			return nil, errors.Errorf("operation %s: duplicate alias '%s'", name, p.Alias)
		}
		seen[p.Alias] = true

		switch p.Type {
		case "":
			p.Type = TypeString
		case TypeString, TypeInt:
		default:
			return nil, errors.Errorf("operation %s: param %s has unknown type '%s'", name, p.Alias, pd.Type)
		}

		def, err := normalizeDefault(p.Type, pd.Default)
		if err != nil {
			return nil, errors.Wrapf(err, "operation %s: param %s", name, p.Alias)
		}
		p.Default = def
		if p.Required && p.Default != nil {
			return nil, errors.Errorf("operation %s: required param %s cannot have a default", name, p.Alias)
		}
		op.Params = append(op.Params, p)
	}

	sort.SliceStable(op.Params, func(i, j int) bool { return op.Params[i].Position < op.Params[j].Position })
	for i, p := range op.Params {
		if p.Position != i {
			return nil, errors.Errorf("operation %s: positions must be contiguous from 0, got %d at slot %d", name, p.Position, i)
		}
		if p.Rest {
			if op.Mode != Positional {
				return nil, errors.Errorf("operation %s: rest param %s requires positional mode", name, p.Alias)
			}
			if i != len(op.Params)-1 {
				return nil, errors.Errorf("operation %s: rest param %s must be last", name, p.Alias)
			}
		}
	}
	return op, nil
}

func normalizeDefault(t ParamType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInt:
		switch d := v.(type) {
		case int:
			return d, nil
		case string:
			n, err := strconv.Atoi(d)
			if err != nil {
				return nil, errors.Errorf("default %q is not an int", d)
			}
			return n, nil
		}
		return nil, errors.Errorf("default %v is not an int", v)
	default:
		return fmt.Sprint(v), nil
	}
}

func buildKeyword(name string, kd keywordDoc) (*KeywordSpec, error) {
	kind, ok := kindNames[kd.Kind]
	if !ok {
		return nil, errors.Errorf("keyword %s: unknown kind '%s'", name, kd.Kind)
	}
	kw := &KeywordSpec{Name: name, Kind: kind, BackLink: kd.BackLink}

	for i, raw := range kd.Flow {
		switch v := raw.(type) {
		case string:
			switch v {
			case "expression":
				kw.Flow = append(kw.Flow, FlowElem{Expr: true})
			case "expression?":
				kw.Flow = append(kw.Flow, FlowElem{Expr: true, Optional: true})
			case "body":
				kw.Flow = append(kw.Flow, FlowElem{Body: true})
			default:
				return nil, errors.Errorf("keyword %s: unknown flow element '%s'", name, v)
			}
		case []any:
			elem := FlowElem{}
			for _, t := range v {
				s, ok := t.(string)
				if !ok {
					return nil, errors.Errorf("keyword %s: terminator set must list names", name)
				}
				elem.Terminators = append(elem.Terminators, s)
			}
			if len(elem.Terminators) == 0 {
				return nil, errors.Errorf("keyword %s: empty terminator set", name)
			}
			if i != len(kd.Flow)-1 {
				return nil, errors.Errorf("keyword %s: terminator set must end the flow", name)
			}
			kw.Flow = append(kw.Flow, elem)
		default:
			return nil, errors.Errorf("keyword %s: invalid flow element %v", name, raw)
		}
		if kw.Flow[i].Expr && i != 0 {
			return nil, errors.Errorf("keyword %s: expression must open the flow", name)
		}
	}

	if kw.BackLink && kind != KindEndWhile && kind != KindUntil {
		return nil, errors.Errorf("keyword %s: only loop terminators may link backwards", name)
	}
	return kw, nil
}

func (s *Schema) validateKeywords() error {
	terminators := make(map[string]bool)
	for name, kw := range s.keywords {
		for _, elem := range kw.Flow {
			for _, t := range elem.Terminators {
				term, ok := s.keywords[t]
				if !ok {
					return errors.Errorf("keyword %s: terminator '%s' is not a keyword", name, t)
				}
				if kw.Kind == KindLoop && !term.BackLink {
					return errors.Errorf("keyword %s: loop terminator '%s' must link backwards", name, t)
				}
				terminators[t] = true
			}
		}
	}
	for name, kw := range s.keywords {
		kw.Opener = !terminators[name]
		if kw.Opener {
			if kw.Kind != KindIf && kw.Kind != KindLoop {
				return errors.Errorf("keyword %s: %s cannot open a block", name, kw.Kind)
			}
			if len(kw.Flow) == 0 || !kw.Flow[len(kw.Flow)-1].IsTerminatorSet() {
				return errors.Errorf("keyword %s: block opener needs a terminator set", name)
			}
		}
	}
	return nil
}
