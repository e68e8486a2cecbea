package template

import (
	"testing"

	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

type stubMachine struct {
	id string
}

func (m stubMachine) TemplateID() string       { return m.id }
func (m stubMachine) Roles() []string          { return []string{"player_1", "player_2"} }
func (m stubMachine) Concurrency() Concurrency { return Sequential }

func (m stubMachine) InitialState() (State, error) {
	return State(`{}`), nil
}

func (m stubMachine) LegalActions(state State, role string) ([]string, error) {
	return nil, nil
}

func (m stubMachine) ApplyAction(state State, role, action string) (State, error) {
	return state, nil
}

func (m stubMachine) IsTerminal(state State) (bool, error) {
	return false, nil
}

func (m stubMachine) ViewState(state State, role string) (State, error) {
	return state, nil
}

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry(stubMachine{id: "dummy.v1"})

	machine, err := registry.Get("dummy.v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if machine.TemplateID() != "dummy.v1" {
		t.Fatalf("template id = %q, want dummy.v1", machine.TemplateID())
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	registry := NewRegistry(stubMachine{id: "dummy.v1"})

	_, err := registry.Get("missing.v1")
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeNotFound {
		t.Fatalf("code = %q, want %q", code, apperrors.CodeNotFound)
	}
}

func TestRegistryIDsSorted(t *testing.T) {
	registry := NewRegistry(
		stubMachine{id: "zebra.v1"},
		stubMachine{id: "alpha.v1"},
		stubMachine{id: "middle.v1"},
	)

	ids := registry.IDs()
	want := []string{"alpha.v1", "middle.v1", "zebra.v1"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate template id")
		}
	}()
	NewRegistry(stubMachine{id: "dummy.v1"}, stubMachine{id: "dummy.v1"})
}
