package skill

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSkill is returned for ids that are neither in the catalog nor
// registered as custom skills.
var ErrUnknownSkill = errors.New("unknown skill")

// Factory builds a skill instance for one agent.
type Factory func(deps Deps) Skill

// Registry maps skill ids to factories. The built-in strategies are
// registered by NewRegistry; Register adds custom ones.
type Registry struct {
	mu        sync.RWMutex
	factories map[ID]Factory
}

// NewRegistry returns a registry with the built-in skills.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[ID]Factory{
			Swap:      NewMomentumSkill,
			Sentiment: NewSentimentSkill,
		},
	}
}

// Register adds a factory for id. Registering an id twice is an error.
func (r *Registry) Register(id ID, factory Factory) error {
	if id == "" || factory == nil {
		return fmt.Errorf("skill id and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("skill %q already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// Implemented reports whether id can be built.
func (r *Registry) Implemented(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// Known reports whether id is a catalog skill or a registered custom skill.
func (r *Registry) Known(id ID) bool {
	return InCatalog(id) || r.Implemented(id)
}

// Build constructs the skills named by ids, in order. Catalog skills without
// an implementation are returned in unsupported instead of failing, so an
// agent can still run its other skills.
func (r *Registry) Build(ids []string, deps Deps) (skills []Skill, unsupported []ID, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[ID]struct{}, len(ids))
	for _, raw := range ids {
		id := ID(raw)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		factory, ok := r.factories[id]
		switch {
		case ok:
			skills = append(skills, factory(deps))
		case InCatalog(id):
			unsupported = append(unsupported, id)
		default:
			return nil, nil, fmt.Errorf("%q: %w", raw, ErrUnknownSkill)
		}
	}
	return skills, unsupported, nil
}
