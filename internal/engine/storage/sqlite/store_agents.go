package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/statemachine.host/internal/engine/storage"
)

const agentColumns = "agent_id, bearer_secret, claim_secret, claimed, created_at"

// CreateAgent inserts a new unclaimed agent row.
func (s *Store) CreateAgent(ctx context.Context, agent storage.AgentRecord) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO agents (agent_id, bearer_secret, claim_secret, claimed, created_at) VALUES (?, NULL, ?, 0, ?)",
		agent.AgentID, agent.ClaimSecret, toMillis(agent.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetAgent returns an agent row by id.
func (s *Store) GetAgent(ctx context.Context, agentID string) (storage.AgentRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+agentColumns+" FROM agents WHERE agent_id = ?", agentID)
	return scanAgent(row)
}

// ClaimAgent atomically installs the bearer secret. The guarded UPDATE only
// matches while the row is unclaimed and the claim secret matches, which
// makes the claim single-use.
func (s *Store) ClaimAgent(ctx context.Context, agentID, claimSecret, bearerSecret string) (storage.AgentRecord, error) {
	var claimed storage.AgentRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE agents SET bearer_secret = ?, claimed = 1 WHERE agent_id = ? AND claim_secret = ? AND claimed = 0",
			bearerSecret, agentID, claimSecret,
		)
		if err != nil {
			return fmt.Errorf("claim agent: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim agent rows affected: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}

		row := tx.QueryRowContext(ctx,
			"SELECT "+agentColumns+" FROM agents WHERE agent_id = ?", agentID)
		claimed, err = scanAgent(row)
		return err
	})
	if err != nil {
		return storage.AgentRecord{}, err
	}
	return claimed, nil
}

// GetAgentByBearer resolves a bearer secret to a claimed agent row.
func (s *Store) GetAgentByBearer(ctx context.Context, bearerSecret string) (storage.AgentRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+agentColumns+" FROM agents WHERE bearer_secret = ? AND claimed = 1", bearerSecret)
	return scanAgent(row)
}

func scanAgent(row *sql.Row) (storage.AgentRecord, error) {
	var (
		agent     storage.AgentRecord
		bearer    sql.NullString
		claimed   int64
		createdAt int64
	)
	err := row.Scan(&agent.AgentID, &bearer, &agent.ClaimSecret, &claimed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AgentRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.AgentRecord{}, fmt.Errorf("scan agent: %w", err)
	}
	agent.BearerSecret = bearer.String
	agent.Claimed = claimed != 0
	agent.CreatedAt = fromMillis(createdAt)
	return agent, nil
}
