package template

import (
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

// Registry is an immutable mapping from template id to its implementation.
// It is populated once at startup; there is no dynamic registration.
type Registry struct {
	machines map[string]StateMachine
}

// NewRegistry builds a registry from the provided templates.
// Duplicate template ids are a wiring bug and panic at startup.
func NewRegistry(machines ...StateMachine) *Registry {
	byID := make(map[string]StateMachine, len(machines))
	for _, m := range machines {
		id := m.TemplateID()
		if _, dup := byID[id]; dup {
			panic(fmt.Sprintf("template %q registered twice", id))
		}
		byID[id] = m
	}
	return &Registry{machines: byID}
}

// Get resolves a template id to its implementation.
func (r *Registry) Get(templateID string) (StateMachine, error) {
	m, ok := r.machines[templateID]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("template %q not found", templateID),
			map[string]string{"template": templateID})
	}
	return m, nil
}

// IDs returns the registered template ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
