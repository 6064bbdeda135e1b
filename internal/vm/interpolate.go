package vm

import (
	"fmt"
	"regexp"
	"strings"

	"dtscript/internal/bytecode"
	"dtscript/internal/config"
	"dtscript/internal/errors"
)

var (
	bracedVar = regexp.MustCompile(`\{\$([A-Za-z_][A-Za-z0-9_]*)\}`)
	bareVar   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// interpolate substitutes runtime variables in a string parameter. Braced
// references are replaced first, then bare ones in the text between them, so
// substituted values are never expanded again.
func (e *Executor) interpolate(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range bracedVar.FindAllStringSubmatchIndex(s, -1) {
		lit, err := e.interpolateBare(s[last:m[0]])
		if err != nil {
			return "", err
		}
		sb.WriteString(lit)

		name := s[m[2]:m[3]]
		val, err := e.lookup(name, s[m[0]:m[1]])
		if err != nil {
			return "", err
		}
		sb.WriteString(val)
		last = m[1]
	}
	lit, err := e.interpolateBare(s[last:])
	if err != nil {
		return "", err
	}
	sb.WriteString(lit)
	return sb.String(), nil
}

func (e *Executor) interpolateBare(s string) (string, error) {
	var firstErr error
	out := bareVar.ReplaceAllStringFunc(s, func(ref string) string {
		val, err := e.lookup(ref[1:], ref)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return val
	})
	return out, firstErr
}

// lookup resolves name, applying the missing-variable policy. Unresolved
// references stay verbatim.
func (e *Executor) lookup(name, ref string) (string, error) {
	if val, ok := e.vars.Get(name); ok {
		return val, nil
	}
	switch e.missing {
	case config.MissingError:
		return ref, errors.NewRuntimeError(errors.MissingVariable,
			fmt.Sprintf("variable '%s' is not set", name), e.script.Path, e.line(), e.pc)
	case config.MissingWarn:
		e.log.Warn("variable not set", "name", name, "script", e.script.Path, "line", e.line())
	}
	return ref, nil
}

// interpolateParams returns code's params with string values interpolated.
// device and include operands are used verbatim.
func (e *Executor) interpolateParams(op string, params []any) ([]any, error) {
	out := make([]any, len(params))
	copy(out, params)
	if bytecode.IsContextSwitch(op) {
		return out, nil
	}
	for i, p := range out {
		s, ok := p.(string)
		if !ok {
			continue
		}
		v, err := e.interpolate(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
