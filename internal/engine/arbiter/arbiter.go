// Package arbiter accepts action submissions and drives sessions forward.
// Each submission runs the full authenticate / authorize / precondition /
// legality / transition / commit sequence under a per-session lock, so state
// changes within a session are totally ordered by tick.
package arbiter

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/statemachine.host/internal/engine/identity"
	"github.com/louisbranch/statemachine.host/internal/engine/notify"
	"github.com/louisbranch/statemachine.host/internal/engine/sessionlock"
	"github.com/louisbranch/statemachine.host/internal/engine/storage"
	"github.com/louisbranch/statemachine.host/internal/engine/template"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
	"github.com/louisbranch/statemachine.host/internal/platform/id"
)

// Result is the submitter's view after a committed transition.
type Result struct {
	Tick   int64
	State  template.State
	Status storage.SessionStatus
}

// Arbiter validates and commits action submissions.
type Arbiter struct {
	identity *identity.Service
	store    storage.Store
	registry *template.Registry
	locker   *sessionlock.Locker
	notifier *notify.Notifier
	tracer   trace.Tracer
}

// New wires an arbiter.
func New(identitySvc *identity.Service, store storage.Store, registry *template.Registry, locker *sessionlock.Locker, notifier *notify.Notifier) *Arbiter {
	return &Arbiter{
		identity: identitySvc,
		store:    store,
		registry: registry,
		locker:   locker,
		notifier: notifier,
		tracer:   otel.Tracer("engine/arbiter"),
	}
}

// Submit runs one submission through the pipeline. expectedTick is required
// for sequential templates and ignored for simultaneous ones.
func (a *Arbiter) Submit(ctx context.Context, bearerSecret, sessionID, action string, expectedTick *int64) (Result, error) {
	ctx, span := a.tracer.Start(ctx, "arbiter.submit",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	agentID, err := a.identity.Resolve(ctx, bearerSecret)
	if err != nil {
		return Result{}, err
	}

	unlock := a.locker.Lock(sessionID)
	defer unlock()

	record, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("session %q not found", sessionID),
				map[string]string{"session_id": sessionID})
		}
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	span.SetAttributes(attribute.String("session.template", record.Template))

	binding, err := a.store.GetParticipant(ctx, sessionID, agentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, apperrors.New(apperrors.CodeForbidden,
				"agent does not participate in this session")
		}
		return Result{}, fmt.Errorf("load participant: %w", err)
	}
	role := binding.Role

	switch record.Status {
	case storage.StatusCompleted:
		return Result{}, apperrors.New(apperrors.CodeInvalidAction, "session is terminal")
	case storage.StatusWaiting:
		return Result{}, apperrors.New(apperrors.CodeInvalidAction, "session has not started")
	}

	machine, err := a.registry.Get(record.Template)
	if err != nil {
		return Result{}, err
	}

	legal, err := machine.LegalActions(record.State, role)
	if err != nil {
		return Result{}, fmt.Errorf("legal actions: %w", err)
	}

	switch machine.Concurrency() {
	case template.Sequential:
		if expectedTick == nil {
			return Result{}, apperrors.New(apperrors.CodeInvalidRequest,
				"expected_tick is required for this template")
		}
		if *expectedTick != record.Tick {
			return Result{}, apperrors.WithMetadata(apperrors.CodeConflict,
				fmt.Sprintf("expected tick %d but session is at %d", *expectedTick, record.Tick),
				map[string]string{
					"expected_tick": fmt.Sprintf("%d", *expectedTick),
					"current_tick":  fmt.Sprintf("%d", record.Tick),
				})
		}
	case template.Simultaneous:
		if len(legal) == 0 {
			return Result{}, apperrors.New(apperrors.CodeAlreadyActed,
				"role has already acted in this phase")
		}
	}

	if !contains(legal, action) {
		return Result{}, apperrors.WithMetadata(apperrors.CodeInvalidAction,
			fmt.Sprintf("action %q is not legal for role %q", action, role),
			map[string]string{"action": action, "role": role})
	}

	newState, err := machine.ApplyAction(record.State, role, action)
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeUnknown {
			return Result{}, err
		}
		return Result{}, apperrors.Wrap(apperrors.CodeInvalidAction, "action rejected by template", err)
	}

	terminal, err := machine.IsTerminal(newState)
	if err != nil {
		return Result{}, fmt.Errorf("terminal check: %w", err)
	}
	status := storage.StatusActive
	if terminal {
		status = storage.StatusCompleted
	}

	actionID, err := id.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate action id: %w", err)
	}
	transition := storage.Transition{
		SessionID: sessionID,
		PrevTick:  record.Tick,
		State:     newState,
		Status:    status,
		ActionID:  actionID,
		AgentID:   agentID,
		Role:      role,
		Action:    action,
	}
	if err := a.store.CommitTransition(ctx, transition); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Result{}, apperrors.New(apperrors.CodeConflict, "session advanced concurrently")
		}
		return Result{}, fmt.Errorf("commit transition: %w", err)
	}

	a.notifier.Publish(notify.Event{SessionID: sessionID})

	view, err := machine.ViewState(newState, role)
	if err != nil {
		return Result{}, fmt.Errorf("view state: %w", err)
	}
	return Result{Tick: record.Tick + 1, State: view, Status: status}, nil
}

func contains(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
