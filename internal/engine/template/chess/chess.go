// Package chess implements the sequential chess template.
//
// Move generation and legality are delegated to the notnil/chess oracle; this
// package only maps positions, UCI actions, and outcomes onto the engine's
// state-machine contract.
package chess

import (
	"encoding/json"
	"fmt"

	chessoracle "github.com/notnil/chess"

	"github.com/louisbranch/statemachine.host/internal/engine/template"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

// ID is the registry key for this template version.
const ID = "chess.v1"

const (
	RoleWhite = "white"
	RoleBlack = "black"
)

type state struct {
	FEN     string `json:"fen"`
	Turn    string `json:"turn"`
	Outcome string `json:"outcome,omitempty"`
}

// Template is the chess.v1 state machine. It is stateless and safe to share.
type Template struct{}

// New returns the chess.v1 template.
func New() *Template {
	return &Template{}
}

// TemplateID returns the registry key.
func (*Template) TemplateID() string {
	return ID
}

// Roles returns white then black.
func (*Template) Roles() []string {
	return []string{RoleWhite, RoleBlack}
}

// Concurrency reports that submissions require the optimistic tick check.
func (*Template) Concurrency() template.Concurrency {
	return template.Sequential
}

// InitialState returns the standard starting position with white to move.
func (*Template) InitialState() (template.State, error) {
	game := chessoracle.NewGame()
	return marshalState(state{
		FEN:  game.Position().String(),
		Turn: RoleWhite,
	})
}

// LegalActions returns the oracle's legal moves in UCI notation, or nothing
// when the game is over or it is not the role's turn.
func (*Template) LegalActions(doc template.State, role string) ([]string, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return nil, err
	}
	if st.Outcome != "" || st.Turn != role {
		return nil, nil
	}

	game, err := gameFromFEN(st.FEN)
	if err != nil {
		return nil, err
	}

	notation := chessoracle.UCINotation{}
	moves := game.ValidMoves()
	actions := make([]string, 0, len(moves))
	for _, move := range moves {
		actions = append(actions, notation.Encode(game.Position(), move))
	}
	return actions, nil
}

// ApplyAction pushes a UCI move through the oracle, flips the turn, and
// records the outcome when the oracle reports one.
func (*Template) ApplyAction(doc template.State, role string, action string) (template.State, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return nil, err
	}
	if st.Outcome != "" {
		return nil, apperrors.New(apperrors.CodeInvalidAction, "game is already over")
	}
	if st.Turn != role {
		return nil, apperrors.New(apperrors.CodeInvalidAction, "not your turn")
	}

	game, err := gameFromFEN(st.FEN)
	if err != nil {
		return nil, err
	}

	move, err := chessoracle.UCINotation{}.Decode(game.Position(), action)
	if err != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidAction,
			fmt.Sprintf("invalid move: %s", action),
			map[string]string{"action": action})
	}
	if err := game.Move(move); err != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidAction,
			fmt.Sprintf("illegal move: %s", action),
			map[string]string{"action": action})
	}

	next := state{
		FEN:  game.Position().String(),
		Turn: roleOf(game.Position().Turn()),
	}
	switch game.Outcome() {
	case chessoracle.WhiteWon:
		next.Outcome = "white_wins"
	case chessoracle.BlackWon:
		next.Outcome = "black_wins"
	case chessoracle.Draw:
		next.Outcome = "draw"
	}

	return marshalState(next)
}

// IsTerminal reports whether the oracle declared an outcome.
func (*Template) IsTerminal(doc template.State) (bool, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return false, err
	}
	return st.Outcome != "", nil
}

// ViewState is the identity: chess is a perfect-information game.
func (*Template) ViewState(doc template.State, role string) (template.State, error) {
	st, err := unmarshalState(doc)
	if err != nil {
		return nil, err
	}
	return marshalState(st)
}

func gameFromFEN(fen string) (*chessoracle.Game, error) {
	fenOption, err := chessoracle.FEN(fen)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidAction, "malformed chess position", err)
	}
	return chessoracle.NewGame(fenOption), nil
}

func roleOf(color chessoracle.Color) string {
	if color == chessoracle.White {
		return RoleWhite
	}
	return RoleBlack
}

func marshalState(st state) (template.State, error) {
	doc, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal chess state: %w", err)
	}
	return doc, nil
}

func unmarshalState(doc template.State) (state, error) {
	var st state
	if err := json.Unmarshal(doc, &st); err != nil {
		return state{}, apperrors.Wrap(apperrors.CodeInvalidAction, "malformed chess state", err)
	}
	return st, nil
}
