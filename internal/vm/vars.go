package vm

import "sort"

// Vars is an executor's runtime variable store. It is owned by a single
// executor and not safe for concurrent use.
type Vars struct {
	values map[string]string
}

func NewVars(initial map[string]string) *Vars {
	v := &Vars{values: make(map[string]string, len(initial))}
	for k, val := range initial {
		v.values[k] = val
	}
	return v
}

func (v *Vars) Get(name string) (string, bool) {
	val, ok := v.values[name]
	return val, ok
}

func (v *Vars) Set(name, value string) {
	v.values[name] = value
}

func (v *Vars) Delete(name string) {
	delete(v.values, name)
}

// Clone copies the store for an include child.
func (v *Vars) Clone() *Vars {
	return NewVars(v.values)
}

// Snapshot returns a copy of every variable.
func (v *Vars) Snapshot() map[string]string {
	out := make(map[string]string, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Names lists variable names in order.
func (v *Vars) Names() []string {
	names := make([]string, 0, len(v.values))
	for k := range v.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
