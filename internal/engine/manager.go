package engine

// Manager holds the engines for all configured groups, keyed by group id.
type Manager struct {
	engines map[string]*Engine
	order   []string
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{engines: make(map[string]*Engine)}
}

// Add registers an engine under its group id.
func (m *Manager) Add(e *Engine) {
	id := e.Config().ID
	if _, ok := m.engines[id]; !ok {
		m.order = append(m.order, id)
	}
	m.engines[id] = e
}

// Get returns the engine for a group id.
func (m *Manager) Get(groupID string) (*Engine, bool) {
	e, ok := m.engines[groupID]
	return e, ok
}

// All returns the engines in registration order.
func (m *Manager) All() []*Engine {
	out := make([]*Engine, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.engines[id])
	}
	return out
}
