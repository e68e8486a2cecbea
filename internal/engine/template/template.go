// Package template defines the state-machine contract every game template
// satisfies and the process-wide registry that resolves template ids.
//
// Session state crosses the contract as opaque JSON documents; each template
// deserializes into its own private state type and the engine never inspects
// the payload.
package template

import (
	"encoding/json"
)

// Concurrency describes how the arbiter serializes submissions for a template.
type Concurrency int

const (
	// Sequential templates require an expected_tick optimistic-lock check on
	// every submission.
	Sequential Concurrency = iota
	// Simultaneous templates detect duplicate submissions through an empty
	// legal-action set instead of tick checks.
	Simultaneous
)

// State is an opaque, template-defined state document.
type State = json.RawMessage

// StateMachine is the capability set every game template exposes.
// All methods are pure: same input, same output, no I/O, inputs never mutated.
type StateMachine interface {
	// TemplateID returns the stable registry key, e.g. "rps.v1".
	TemplateID() string

	// Roles returns the template's ordered, fixed role set.
	Roles() []string

	// Concurrency reports which arbiter precondition applies to submissions.
	Concurrency() Concurrency

	// InitialState returns the deterministic starting state document.
	InitialState() (State, error)

	// LegalActions returns the actions role may take in state. The result is
	// empty exactly when the role cannot act; order is deterministic.
	LegalActions(state State, role string) ([]string, error)

	// ApplyAction returns the successor state. It fails with INVALID_ACTION
	// when action is not in LegalActions(state, role).
	ApplyAction(state State, role string, action string) (State, error)

	// IsTerminal reports whether no role has any legal action left.
	IsTerminal(state State) (bool, error)

	// ViewState filters state down to what role may see. Idempotent:
	// ViewState(ViewState(s, r), r) == ViewState(s, r).
	ViewState(state State, role string) (State, error)
}
