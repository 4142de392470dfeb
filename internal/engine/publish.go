package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/labelmate/labeld/internal/group"
)

// Published is the observable state of one group: the aggregate plus
// command diagnostics.
type Published struct {
	GroupID string          `json:"group_id"`
	Label   string          `json:"label"`
	Type    group.GroupType `json:"type"`

	group.State

	LastOnScene  string    `json:"last_on_scene,omitempty"`
	LastOffScene string    `json:"last_off_scene,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Publisher receives group state publications. Publish is called from a
// single engine goroutine per group id.
type Publisher interface {
	Publish(groupID string, st Published)
}

// MultiPublisher fans a publication out to several publishers.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(groupID string, st Published) {
	for _, p := range m {
		p.Publish(groupID, st)
	}
}

// Registry holds the most recently published state per group.
// Single writer per group id (the engine's resolving step), any number of
// readers (the API layer); readers never feed back into the write.
type Registry struct {
	mu     sync.RWMutex
	states map[string]Published
}

// NewRegistry creates an empty state registry.
func NewRegistry() *Registry {
	return &Registry{states: make(map[string]Published)}
}

// Publish stores the latest state for a group.
func (r *Registry) Publish(groupID string, st Published) {
	r.mu.Lock()
	r.states[groupID] = st
	r.mu.Unlock()
}

// Seed stores a state only if the group has none yet. Used at startup to
// surface the last persisted state before the first recompute.
func (r *Registry) Seed(groupID string, st Published) {
	r.mu.Lock()
	if _, ok := r.states[groupID]; !ok {
		r.states[groupID] = st
	}
	r.mu.Unlock()
}

// Get returns the latest state for a group.
func (r *Registry) Get(groupID string) (Published, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[groupID]
	return st, ok
}

// List returns all states, ordered by label for stable output.
func (r *Registry) List() []Published {
	r.mu.RLock()
	out := make([]Published, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, st)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}
