package sqlite

import (
	"context"
	"fmt"

	"github.com/louisbranch/statemachine.host/internal/engine/storage"
)

// ListActions returns a session's log ordered by ascending tick.
func (s *Store) ListActions(ctx context.Context, sessionID string) ([]storage.ActionRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT action_id, session_id, agent_id, role, action, tick, created_at FROM actions WHERE session_id = ? ORDER BY tick ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []storage.ActionRecord
	for rows.Next() {
		var (
			action    storage.ActionRecord
			createdAt int64
		)
		if err := rows.Scan(&action.ActionID, &action.SessionID, &action.AgentID,
			&action.Role, &action.Action, &action.Tick, &createdAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		action.CreatedAt = fromMillis(createdAt)
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}
