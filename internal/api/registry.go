package api

import (
	"fmt"
	"sort"

	"dtscript/internal/syntax"
)

// Handler implements one operation.
type Handler func(c *Context, p *Params) (any, error)

// Descriptor registers an operation. Spec may be nil: the schema's entry is
// used when there is one, otherwise the default plugin spec.
type Descriptor struct {
	Name    string
	Spec    *syntax.OperationSpec
	Handler Handler
}

// Discoverer supplies externally registered operations at startup.
type Discoverer interface {
	Operations() ([]Descriptor, error)
}

// Static is a Discoverer over a fixed list.
type Static []Descriptor

func (s Static) Operations() ([]Descriptor, error) {
	return s, nil
}

// Registry maps operation names to handlers. It is built once and only read
// afterwards.
type Registry struct {
	ops map[string]Descriptor
}

// NewRegistry builds the registry from built-in and discovered descriptors.
// Specs are taken from schema when it knows the name.
func NewRegistry(schema *syntax.Schema, builtins []Descriptor, plugins ...Descriptor) (*Registry, error) {
	r := &Registry{ops: make(map[string]Descriptor, len(builtins)+len(plugins))}
	for _, d := range append(append([]Descriptor(nil), builtins...), plugins...) {
		if d.Handler == nil {
			return nil, fmt.Errorf("operation %s has no handler", d.Name)
		}
		if _, dup := r.ops[d.Name]; dup {
			return nil, fmt.Errorf("operation %s registered twice", d.Name)
		}
		if spec, ok := schema.Operation(d.Name); ok {
			d.Spec = spec
		} else if d.Spec == nil {
			d.Spec = syntax.DefaultOperation(d.Name)
		} else if d.Spec.Name != d.Name {
			return nil, fmt.Errorf("operation %s carries a spec for %s", d.Name, d.Spec.Name)
		}
		r.ops[d.Name] = d
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.ops[name]
	return d, ok
}

// Names lists the registered operations in name order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the operation specs, for merging into the schema.
func (r *Registry) Specs() []*syntax.OperationSpec {
	specs := make([]*syntax.OperationSpec, 0, len(r.ops))
	for _, name := range r.Names() {
		specs = append(specs, r.ops[name].Spec)
	}
	return specs
}
