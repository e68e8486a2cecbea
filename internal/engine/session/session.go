// Package session implements session lifecycle operations: creation with
// partial or full role assignment, joining open slots, and participant-scoped
// reads of state and the action log.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/statemachine.host/internal/engine/notify"
	"github.com/louisbranch/statemachine.host/internal/engine/storage"
	"github.com/louisbranch/statemachine.host/internal/engine/template"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
	"github.com/louisbranch/statemachine.host/internal/platform/id"
)

// View is a participant-scoped snapshot of a session. State already went
// through the template's visibility filter for the participant's role.
type View struct {
	SessionID    string
	Template     string
	Status       storage.SessionStatus
	Tick         int64
	Role         string
	State        template.State
	LegalActions []string
}

// Summary is a listing row; it omits state so non-owned roles leak nothing.
type Summary struct {
	SessionID string
	Template  string
	Status    storage.SessionStatus
	Tick      int64
	Role      string
	UpdatedAt time.Time
}

// LogEntry is one committed action from a session's append-only log.
type LogEntry struct {
	Tick      int64
	Role      string
	AgentID   string
	Action    string
	CreatedAt time.Time
}

// Service owns session lifecycle operations.
type Service struct {
	store    storage.Store
	registry *template.Registry
	notifier *notify.Notifier
}

// NewService wires a session service.
func NewService(store storage.Store, registry *template.Registry, notifier *notify.Notifier) *Service {
	return &Service{store: store, registry: registry, notifier: notifier}
}

// Create instantiates a template. Participants maps roles to agent ids; roles
// absent from the map stay open and leave the session waiting. The caller
// must occupy one of the assigned roles.
func (s *Service) Create(ctx context.Context, callerAgentID, templateID string, participants map[string]string) (View, error) {
	machine, err := s.registry.Get(templateID)
	if err != nil {
		return View{}, err
	}

	roles := machine.Roles()
	known := make(map[string]bool, len(roles))
	for _, role := range roles {
		known[role] = true
	}

	callerListed := false
	seen := make(map[string]string, len(participants))
	for role, agentID := range participants {
		if !known[role] {
			return View{}, apperrors.WithMetadata(apperrors.CodeInvalidRequest,
				fmt.Sprintf("template %q has no role %q", templateID, role),
				map[string]string{"template": templateID, "role": role})
		}
		if prev, dup := seen[agentID]; dup {
			return View{}, apperrors.WithMetadata(apperrors.CodeInvalidRequest,
				fmt.Sprintf("agent assigned to both %q and %q", prev, role),
				map[string]string{"agent_id": agentID})
		}
		seen[agentID] = role
		if _, err := s.store.GetAgent(ctx, agentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return View{}, apperrors.WithMetadata(apperrors.CodeNotFound,
					fmt.Sprintf("agent %q not found", agentID),
					map[string]string{"agent_id": agentID})
			}
			return View{}, fmt.Errorf("load agent: %w", err)
		}
		if agentID == callerAgentID {
			callerListed = true
		}
	}
	if !callerListed {
		return View{}, apperrors.New(apperrors.CodeForbidden,
			"caller must occupy one of the assigned roles")
	}

	initial, err := machine.InitialState()
	if err != nil {
		return View{}, fmt.Errorf("initial state: %w", err)
	}

	sessionID, err := id.NewID()
	if err != nil {
		return View{}, fmt.Errorf("generate session id: %w", err)
	}

	status := storage.StatusActive
	if len(participants) < len(roles) {
		status = storage.StatusWaiting
	}

	now := time.Now()
	record := storage.SessionRecord{
		SessionID: sessionID,
		Template:  templateID,
		State:     initial,
		Status:    status,
		Tick:      0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	bindings := make([]storage.ParticipantRecord, 0, len(participants))
	for _, role := range roles {
		agentID, ok := participants[role]
		if !ok {
			continue
		}
		bindings = append(bindings, storage.ParticipantRecord{
			SessionID: sessionID,
			AgentID:   agentID,
			Role:      role,
		})
	}
	if err := s.store.CreateSession(ctx, record, bindings); err != nil {
		return View{}, fmt.Errorf("create session: %w", err)
	}

	return s.view(machine, record, seen[callerAgentID])
}

// Join binds the caller to an open role. An empty role picks the first open
// role in the template's role order. Activation is announced to subscribers.
func (s *Service) Join(ctx context.Context, callerAgentID, sessionID, role string) (View, error) {
	record, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return View{}, sessionNotFound(sessionID)
		}
		return View{}, fmt.Errorf("load session: %w", err)
	}
	machine, err := s.registry.Get(record.Template)
	if err != nil {
		return View{}, err
	}

	if record.Status != storage.StatusWaiting {
		return View{}, apperrors.New(apperrors.CodeForbidden, "session is not accepting participants")
	}

	bound, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("list participants: %w", err)
	}
	filled := make(map[string]bool, len(bound))
	for _, p := range bound {
		if p.AgentID == callerAgentID {
			return View{}, apperrors.New(apperrors.CodeForbidden, "agent already participates in this session")
		}
		filled[p.Role] = true
	}

	roles := machine.Roles()
	if role == "" {
		for _, candidate := range roles {
			if !filled[candidate] {
				role = candidate
				break
			}
		}
		if role == "" {
			return View{}, apperrors.New(apperrors.CodeConflict, "no open roles")
		}
	} else {
		known := false
		for _, candidate := range roles {
			if candidate == role {
				known = true
				break
			}
		}
		if !known {
			return View{}, apperrors.WithMetadata(apperrors.CodeInvalidRequest,
				fmt.Sprintf("template %q has no role %q", record.Template, role),
				map[string]string{"template": record.Template, "role": role})
		}
		if filled[role] {
			return View{}, apperrors.WithMetadata(apperrors.CodeConflict,
				fmt.Sprintf("role %q is already taken", role),
				map[string]string{"role": role})
		}
	}

	binding := storage.ParticipantRecord{SessionID: sessionID, AgentID: callerAgentID, Role: role}
	if err := s.store.AddParticipant(ctx, binding, len(roles)); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return View{}, apperrors.WithMetadata(apperrors.CodeConflict,
				fmt.Sprintf("role %q is already taken", role),
				map[string]string{"role": role})
		}
		return View{}, fmt.Errorf("add participant: %w", err)
	}

	record, err = s.store.GetSession(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("reload session: %w", err)
	}

	s.notifier.Publish(notify.Event{SessionID: sessionID})

	return s.view(machine, record, role)
}

// Read returns the caller's view of a session. Non-participants get
// FORBIDDEN regardless of whether the session exists.
func (s *Service) Read(ctx context.Context, callerAgentID, sessionID string) (View, error) {
	record, binding, machine, err := s.loadForParticipant(ctx, callerAgentID, sessionID)
	if err != nil {
		return View{}, err
	}
	return s.view(machine, record, binding.Role)
}

// List returns summaries of every session the caller participates in, most
// recently updated first.
func (s *Service) List(ctx context.Context, callerAgentID string) ([]Summary, error) {
	records, err := s.store.ListSessionsByAgent(ctx, callerAgentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	summaries := make([]Summary, 0, len(records))
	for _, record := range records {
		binding, err := s.store.GetParticipant(ctx, record.SessionID, callerAgentID)
		if err != nil {
			return nil, fmt.Errorf("load participant: %w", err)
		}
		summaries = append(summaries, Summary{
			SessionID: record.SessionID,
			Template:  record.Template,
			Status:    record.Status,
			Tick:      record.Tick,
			Role:      binding.Role,
			UpdatedAt: record.UpdatedAt,
		})
	}
	return summaries, nil
}

// ReadLog returns the session's committed actions in tick order.
func (s *Service) ReadLog(ctx context.Context, callerAgentID, sessionID string) ([]LogEntry, error) {
	if _, _, _, err := s.loadForParticipant(ctx, callerAgentID, sessionID); err != nil {
		return nil, err
	}

	actions, err := s.store.ListActions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	entries := make([]LogEntry, 0, len(actions))
	for _, action := range actions {
		entries = append(entries, LogEntry{
			Tick:      action.Tick,
			Role:      action.Role,
			AgentID:   action.AgentID,
			Action:    action.Action,
			CreatedAt: action.CreatedAt,
		})
	}
	return entries, nil
}

// loadForParticipant resolves the session, the caller's binding, and the
// template, rejecting non-participants.
func (s *Service) loadForParticipant(ctx context.Context, callerAgentID, sessionID string) (storage.SessionRecord, storage.ParticipantRecord, template.StateMachine, error) {
	record, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SessionRecord{}, storage.ParticipantRecord{}, nil, sessionNotFound(sessionID)
		}
		return storage.SessionRecord{}, storage.ParticipantRecord{}, nil, fmt.Errorf("load session: %w", err)
	}

	binding, err := s.store.GetParticipant(ctx, sessionID, callerAgentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SessionRecord{}, storage.ParticipantRecord{}, nil,
				apperrors.New(apperrors.CodeForbidden, "agent does not participate in this session")
		}
		return storage.SessionRecord{}, storage.ParticipantRecord{}, nil, fmt.Errorf("load participant: %w", err)
	}

	machine, err := s.registry.Get(record.Template)
	if err != nil {
		return storage.SessionRecord{}, storage.ParticipantRecord{}, nil, err
	}
	return record, binding, machine, nil
}

func (s *Service) view(machine template.StateMachine, record storage.SessionRecord, role string) (View, error) {
	visible, err := machine.ViewState(record.State, role)
	if err != nil {
		return View{}, fmt.Errorf("view state: %w", err)
	}

	var legal []string
	if record.Status == storage.StatusActive {
		legal, err = machine.LegalActions(record.State, role)
		if err != nil {
			return View{}, fmt.Errorf("legal actions: %w", err)
		}
	}

	return View{
		SessionID:    record.SessionID,
		Template:     record.Template,
		Status:       record.Status,
		Tick:         record.Tick,
		Role:         role,
		State:        visible,
		LegalActions: legal,
	}, nil
}

func sessionNotFound(sessionID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("session %q not found", sessionID),
		map[string]string{"session_id": sessionID})
}
