// Package rps implements the simultaneous rock-paper-scissors template.
//
// Both players commit a hidden choice; the second commit resolves the round
// and the session is terminal once a result is set, draws included.
package rps

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/statemachine.host/internal/engine/template"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

// ID is the registry key for this template version.
const ID = "rps.v1"

const (
	RolePlayer1 = "player_1"
	RolePlayer2 = "player_2"
)

const (
	phaseCommit = "commit"
	phaseReveal = "reveal"
)

// hiddenChoice masks the opponent's committed choice during the commit phase.
const hiddenChoice = "hidden"

// choices a player may commit, in deterministic order.
var choices = []string{"rock", "paper", "scissors"}

// beats maps each choice to the choice it defeats.
var beats = map[string]string{
	"rock":     "scissors",
	"paper":    "rock",
	"scissors": "paper",
}

type state struct {
	Phase   string            `json:"phase"`
	Choices map[string]string `json:"choices"`
	Result  string            `json:"result,omitempty"`
}

// Template is the rps.v1 state machine. It is stateless and safe to share.
type Template struct{}

// New returns the rps.v1 template.
func New() *Template {
	return &Template{}
}

// TemplateID returns the registry key.
func (*Template) TemplateID() string {
	return ID
}

// Roles returns the two symmetric player roles.
func (*Template) Roles() []string {
	return []string{RolePlayer1, RolePlayer2}
}

// Concurrency reports that submissions resolve by phase, not by tick.
func (*Template) Concurrency() template.Concurrency {
	return template.Simultaneous
}

// InitialState returns the commit phase with no choices recorded.
func (*Template) InitialState() (template.State, error) {
	return marshalState(state{
		Phase:   phaseCommit,
		Choices: map[string]string{},
	})
}

// LegalActions returns the three choices while the role has not committed.
func (*Template) LegalActions(doc template.State, role string) ([]string, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return nil, err
	}
	if st.Result != "" || st.Phase != phaseCommit {
		return nil, nil
	}
	if _, committed := st.Choices[role]; committed {
		return nil, nil
	}
	out := make([]string, len(choices))
	copy(out, choices)
	return out, nil
}

// ApplyAction records the role's choice and resolves the round once both
// choices are present.
func (*Template) ApplyAction(doc template.State, role string, action string) (template.State, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return nil, err
	}
	if st.Result != "" {
		return nil, apperrors.New(apperrors.CodeInvalidAction, "game is already over")
	}
	if _, committed := st.Choices[role]; committed {
		return nil, apperrors.New(apperrors.CodeAlreadyActed, "already submitted choice this phase")
	}
	if _, valid := beats[action]; !valid {
		return nil, apperrors.New(apperrors.CodeInvalidAction, fmt.Sprintf("invalid choice: %s", action))
	}

	next := state{
		Phase:   st.Phase,
		Choices: make(map[string]string, len(st.Choices)+1),
		Result:  st.Result,
	}
	for r, c := range st.Choices {
		next.Choices[r] = c
	}
	next.Choices[role] = action

	p1, ok1 := next.Choices[RolePlayer1]
	p2, ok2 := next.Choices[RolePlayer2]
	if ok1 && ok2 {
		next.Phase = phaseReveal
		next.Result = resolve(p1, p2)
	}

	return marshalState(next)
}

// IsTerminal reports whether the round has been resolved.
func (*Template) IsTerminal(doc template.State) (bool, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return false, err
	}
	return st.Result != "", nil
}

// ViewState masks the opponent's choice during the commit phase.
func (*Template) ViewState(doc template.State, role string) (template.State, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return nil, err
	}

	view := state{
		Phase:   st.Phase,
		Choices: make(map[string]string, len(st.Choices)),
		Result:  st.Result,
	}
	for r, c := range st.Choices {
		view.Choices[r] = c
	}

	if st.Phase == phaseCommit {
		opponent := RolePlayer2
		if role == RolePlayer2 {
			opponent = RolePlayer1
		}
		if _, committed := view.Choices[opponent]; committed {
			view.Choices[opponent] = hiddenChoice
		}
	}

	return marshalState(view)
}

func resolve(p1, p2 string) string {
	switch {
	case p1 == p2:
		return "draw"
	case beats[p1] == p2:
		return "player_1_wins"
	default:
		return "player_2_wins"
	}
}

func marshalState(st state) (template.State, error) {
	doc, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal rps state: %w", err)
	}
	return doc, nil
}

func unmarshalState(doc template.State) (state, error) {
	var st state
	if err := json.Unmarshal(doc, &st); err != nil {
		return state{}, apperrors.Wrap(apperrors.CodeInvalidAction, "malformed rps state", err)
	}
	if st.Choices == nil {
		st.Choices = map[string]string{}
	}
	return st, nil
}
