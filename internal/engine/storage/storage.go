// Package storage defines the persistence contract for the coordination
// engine: agent identities, session rows, participant bindings, and the
// append-only action log.
package storage

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConflict indicates a write lost a uniqueness or tick race.
var ErrConflict = apperrors.New(apperrors.CodeConflict, "conflicting write")

// SessionStatus is the lifecycle state of a session row.
type SessionStatus string

const (
	// StatusWaiting marks sessions with at least one unbound role.
	StatusWaiting SessionStatus = "waiting"
	// StatusActive marks sessions where every role is bound and the state
	// is not terminal.
	StatusActive SessionStatus = "active"
	// StatusCompleted marks sessions whose state the template reports as
	// terminal; state is frozen and the tick no longer advances.
	StatusCompleted SessionStatus = "completed"
)

// AgentRecord is an agent identity row.
// BearerSecret is empty until the agent is claimed.
type AgentRecord struct {
	AgentID      string
	BearerSecret string
	ClaimSecret  string
	Claimed      bool
	CreatedAt    time.Time
}

// SessionRecord is a running template instance.
type SessionRecord struct {
	SessionID string
	Template  string
	State     json.RawMessage
	Status    SessionStatus
	Tick      int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ParticipantRecord binds an agent to a role within a session.
type ParticipantRecord struct {
	SessionID string
	AgentID   string
	Role      string
}

// ActionRecord is an immutable action-log entry.
type ActionRecord struct {
	ActionID  string
	SessionID string
	AgentID   string
	Role      string
	Action    string
	Tick      int64
	CreatedAt time.Time
}

// Transition captures the atomic commit of one accepted submission: the
// session row update and the action-log append happen in one transaction.
type Transition struct {
	SessionID string
	// PrevTick guards the update; the row must still be at this tick.
	PrevTick int64
	State    json.RawMessage
	Status   SessionStatus

	ActionID string
	AgentID  string
	Role     string
	Action   string
}

// AgentStore owns agent identity rows.
type AgentStore interface {
	CreateAgent(ctx context.Context, agent AgentRecord) error
	GetAgent(ctx context.Context, agentID string) (AgentRecord, error)
	// ClaimAgent atomically installs the bearer secret iff the agent is
	// still unclaimed and claimSecret matches. A failed precondition
	// reports ErrNotFound.
	ClaimAgent(ctx context.Context, agentID, claimSecret, bearerSecret string) (AgentRecord, error)
	GetAgentByBearer(ctx context.Context, bearerSecret string) (AgentRecord, error)
}

// SessionStore owns session rows and participant bindings.
type SessionStore interface {
	// CreateSession inserts the session row and its initial participant
	// bindings in one transaction.
	CreateSession(ctx context.Context, session SessionRecord, participants []ParticipantRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	// ListSessionsByAgent returns sessions the agent participates in,
	// most recently updated first.
	ListSessionsByAgent(ctx context.Context, agentID string) ([]SessionRecord, error)
	GetParticipant(ctx context.Context, sessionID, agentID string) (ParticipantRecord, error)
	ListParticipants(ctx context.Context, sessionID string) ([]ParticipantRecord, error)
	// AddParticipant binds an open role and, in the same transaction, flips
	// the session to active once the participant count reaches totalRoles.
	// A role collision reports ErrConflict.
	AddParticipant(ctx context.Context, participant ParticipantRecord, totalRoles int) error
	// CommitTransition applies a Transition atomically. A PrevTick
	// mismatch reports ErrConflict.
	CommitTransition(ctx context.Context, transition Transition) error
}

// ActionStore reads the append-only action log.
type ActionStore interface {
	// ListActions returns a session's log ordered by ascending tick.
	ListActions(ctx context.Context, sessionID string) ([]ActionRecord, error)
}

// Store aggregates every persistence interface the engine consumes.
type Store interface {
	AgentStore
	SessionStore
	ActionStore
	Close() error
}
