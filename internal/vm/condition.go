package vm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dtscript/internal/bytecode"
)

// evaluate folds a chain of "left op right" triples joined by and/or from
// left to right.
func evaluate(cond []any) (bool, error) {
	if len(cond) < 3 || (len(cond)-3)%4 != 0 {
		return false, fmt.Errorf("malformed condition %s", render(cond))
	}

	result, err := compare(operand(cond[0]), operand(cond[1]), operand(cond[2]))
	if err != nil {
		return false, err
	}
	for i := 3; i < len(cond); i += 4 {
		next, err := compare(operand(cond[i+1]), operand(cond[i+2]), operand(cond[i+3]))
		if err != nil {
			return false, err
		}
		switch conj := operand(cond[i]); conj {
		case "and":
			result = result && next
		case "or":
			result = result || next
		default:
			return false, fmt.Errorf("unknown conjunction '%s'", conj)
		}
	}
	return result, nil
}

func compare(left, op, right string) (bool, error) {
	switch op {
	case "eq", "==":
		return equal(left, right), nil
	case "ne", "!=":
		return !equal(left, right), nil
	case "lt", "<", "gt", ">", "le", "<=", "ge", ">=":
		l, lok := number(left)
		r, rok := number(right)
		if !lok || !rok {
			return false, fmt.Errorf("'%s' needs numeric operands, got %q and %q", op, left, right)
		}
		switch op {
		case "lt", "<":
			return l < r, nil
		case "gt", ">":
			return l > r, nil
		case "le", "<=":
			return l <= r, nil
		default:
			return l >= r, nil
		}
	case "contains":
		return strings.Contains(left, right), nil
	case "!contains":
		return !strings.Contains(left, right), nil
	case "match":
		re, err := regexp.Compile(right)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %v", right, err)
		}
		return re.MatchString(left), nil
	}
	return false, fmt.Errorf("unknown operator '%s'", op)
}

// equal compares numerically when both sides are numbers.
func equal(left, right string) bool {
	l, lok := number(left)
	r, rok := number(right)
	if lok && rok {
		return l == r
	}
	return left == right
}

func number(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func operand(v any) string {
	return bytecode.FormatParam(v)
}

func render(cond []any) string {
	parts := make([]string, len(cond))
	for i, v := range cond {
		parts[i] = operand(v)
	}
	return strings.Join(parts, " ")
}
