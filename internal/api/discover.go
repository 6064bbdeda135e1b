package api

import (
	"fmt"
	"sort"
	"strings"

	"dtscript/internal/syntax"
)

// NewRegistryFrom builds a registry from builtins plus the operations d
// discovers. d is asked once; a nil d adds nothing.
func NewRegistryFrom(schema *syntax.Schema, builtins []Descriptor, d Discoverer) (*Registry, error) {
	if d == nil {
		return NewRegistry(schema, builtins)
	}
	plugins, err := d.Operations()
	if err != nil {
		return nil, fmt.Errorf("discover operations: %w", err)
	}
	return NewRegistry(schema, builtins, plugins...)
}

// Aliases maps operation names to device command text. Each alias sends its
// command with the call's arguments appended.
type Aliases map[string]string

func (a Aliases) Operations() ([]Descriptor, error) {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)

	ops := make([]Descriptor, 0, len(names))
	for _, name := range names {
		if name == "" || strings.ContainsAny(name, " \t<>[]{}$") {
			return nil, fmt.Errorf("alias %q is not a valid operation name", name)
		}
		command := strings.TrimSpace(a[name])
		if command == "" {
			return nil, fmt.Errorf("alias %s has no command", name)
		}
		ops = append(ops, Descriptor{Name: name, Handler: alias(command)})
	}
	return ops, nil
}

func alias(command string) Handler {
	return func(c *Context, p *Params) (any, error) {
		text := command
		if args := p.String("args"); args != "" {
			text += " " + args
		}
		return sendText(c, text)
	}
}
