package syntax

import "sync"

// Manager shares one schema between compilers. The schema is replaced at most
// once, when operations discovered at startup are merged in.
type Manager struct {
	mu     sync.RWMutex
	schema *Schema
	once   sync.Once
}

func NewManager(s *Schema) *Manager {
	return &Manager{schema: s}
}

// Schema returns the current schema.
func (m *Manager) Schema() *Schema {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schema
}

// RefreshOnce merges specs into the schema the first time it is called and is
// a no-op afterwards.
func (m *Manager) RefreshOnce(specs []*OperationSpec) *Schema {
	m.once.Do(func() {
		m.mu.Lock()
		m.schema = m.schema.Merge(specs)
		m.mu.Unlock()
	})
	return m.Schema()
}
