package api

import (
	"fmt"
	"strconv"

	"dtscript/internal/bytecode"
	"dtscript/internal/syntax"
)

// Params is the named view of an instruction's parameter tuple. Values are
// already converted to their declared types, so handlers never inspect the
// raw tuple.
type Params struct {
	op     string
	values map[string]any
}

// Bind maps tuple slots onto spec's parameters in position order. Absent
// slots take the declared default.
func Bind(spec *syntax.OperationSpec, tuple []any) (*Params, error) {
	if len(tuple) > len(spec.Params) {
		return nil, fmt.Errorf("%s: takes %d parameters, got %d", spec.Name, len(spec.Params), len(tuple))
	}

	p := &Params{op: spec.Name, values: make(map[string]any, len(spec.Params))}
	for i, ps := range spec.Params {
		var v any
		if i < len(tuple) {
			v = tuple[i]
		}
		if v == nil {
			v = ps.Default
		}
		if v == nil {
			if ps.Required {
				return nil, fmt.Errorf("%s: missing required parameter '%s'", spec.Name, ps.Alias)
			}
			continue
		}
		if ps.Type == syntax.TypeInt {
			n, err := toInt(v)
			if err != nil {
				return nil, fmt.Errorf("%s: parameter '%s': %w", spec.Name, ps.Alias, err)
			}
			v = n
		} else {
			v = bytecode.FormatParam(v)
		}
		p.values[ps.Alias] = v
	}
	return p, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%q is not an int", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%v is not an int", v)
}

// Op is the operation the params were bound for.
func (p *Params) Op() string {
	return p.op
}

// Has reports whether alias received a value or a default.
func (p *Params) Has(alias string) bool {
	_, ok := p.values[alias]
	return ok
}

// String returns a string parameter, "" when absent.
func (p *Params) String(alias string) string {
	switch v := p.values[alias].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// Int returns an int parameter, 0 when absent.
func (p *Params) Int(alias string) int {
	n, _ := p.values[alias].(int)
	return n
}

// Bool treats a non-zero int parameter as true.
func (p *Params) Bool(alias string) bool {
	return p.Int(alias) != 0
}
