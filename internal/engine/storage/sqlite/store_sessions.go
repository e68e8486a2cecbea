package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/statemachine.host/internal/engine/storage"
)

const sessionColumns = "session_id, template, state, status, tick, created_at, updated_at"

// CreateSession inserts the session row and its initial participant bindings
// in one transaction.
func (s *Store) CreateSession(ctx context.Context, session storage.SessionRecord, participants []storage.ParticipantRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO sessions (session_id, template, state, status, tick, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			session.SessionID, session.Template, string(session.State), string(session.Status),
			session.Tick, toMillis(session.CreatedAt), toMillis(session.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		for _, p := range participants {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO participants (session_id, agent_id, role) VALUES (?, ?, ?)",
				p.SessionID, p.AgentID, p.Role,
			); err != nil {
				if isUniqueViolation(err) {
					return storage.ErrConflict
				}
				return fmt.Errorf("insert participant: %w", err)
			}
		}
		return nil
	})
}

// GetSession returns a session row by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ?", sessionID)
	return scanSession(row)
}

// ListSessionsByAgent returns sessions the agent participates in, most
// recently updated first.
func (s *Store) ListSessionsByAgent(ctx context.Context, agentID string) ([]storage.SessionRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT s.session_id, s.template, s.state, s.status, s.tick, s.created_at, s.updated_at
		 FROM sessions s
		 JOIN participants p ON s.session_id = p.session_id
		 WHERE p.agent_id = ?
		 ORDER BY s.updated_at DESC, s.session_id`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []storage.SessionRecord
	for rows.Next() {
		session, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetParticipant returns the agent's binding within a session.
func (s *Store) GetParticipant(ctx context.Context, sessionID, agentID string) (storage.ParticipantRecord, error) {
	var p storage.ParticipantRecord
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT session_id, agent_id, role FROM participants WHERE session_id = ? AND agent_id = ?",
		sessionID, agentID,
	).Scan(&p.SessionID, &p.AgentID, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ParticipantRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ParticipantRecord{}, fmt.Errorf("scan participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns every binding for a session.
func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]storage.ParticipantRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT session_id, agent_id, role FROM participants WHERE session_id = ? ORDER BY role",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []storage.ParticipantRecord
	for rows.Next() {
		var p storage.ParticipantRecord
		if err := rows.Scan(&p.SessionID, &p.AgentID, &p.Role); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// AddParticipant binds an open role and, in the same transaction, activates
// the session once every role is bound. Counting inside the transaction keeps
// concurrent joins from leaving a full roster stuck at waiting.
func (s *Store) AddParticipant(ctx context.Context, participant storage.ParticipantRecord, totalRoles int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO participants (session_id, agent_id, role) VALUES (?, ?, ?)",
			participant.SessionID, participant.AgentID, participant.Role,
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert participant: %w", err)
		}

		var bound int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM participants WHERE session_id = ?",
			participant.SessionID,
		).Scan(&bound); err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		status := storage.StatusWaiting
		if bound >= totalRoles {
			status = storage.StatusActive
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?",
			string(status), toMillis(time.Now()), participant.SessionID,
		); err != nil {
			return fmt.Errorf("update session status: %w", err)
		}
		return nil
	})
}

// CommitTransition applies one accepted submission atomically: the session
// row advances exactly one tick and the matching log entry is appended.
func (s *Store) CommitTransition(ctx context.Context, transition storage.Transition) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE sessions SET state = ?, tick = tick + 1, status = ?, updated_at = ? WHERE session_id = ? AND tick = ?",
			string(transition.State), string(transition.Status), toMillis(time.Now()),
			transition.SessionID, transition.PrevTick,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update session rows affected: %w", err)
		}
		if affected == 0 {
			return storage.ErrConflict
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO actions (action_id, session_id, agent_id, role, action, tick, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			transition.ActionID, transition.SessionID, transition.AgentID,
			transition.Role, transition.Action, transition.PrevTick, toMillis(time.Now()),
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert action: %w", err)
		}
		return nil
	})
}

func scanSession(row *sql.Row) (storage.SessionRecord, error) {
	var (
		session   storage.SessionRecord
		state     string
		status    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&session.SessionID, &session.Template, &state, &status,
		&session.Tick, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SessionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("scan session: %w", err)
	}
	session.State = []byte(state)
	session.Status = storage.SessionStatus(status)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	return session, nil
}

func scanSessionRows(rows *sql.Rows) (storage.SessionRecord, error) {
	var (
		session   storage.SessionRecord
		state     string
		status    string
		createdAt int64
		updatedAt int64
	)
	err := rows.Scan(&session.SessionID, &session.Template, &state, &status,
		&session.Tick, &createdAt, &updatedAt)
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("scan session: %w", err)
	}
	session.State = []byte(state)
	session.Status = storage.SessionStatus(status)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	return session, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
