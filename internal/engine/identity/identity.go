// Package identity implements agent registration and the two-step claim
// handshake that exchanges a single-use claim token for a bearer token.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/statemachine.host/internal/engine/storage"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
	"github.com/louisbranch/statemachine.host/internal/platform/id"
	"github.com/louisbranch/statemachine.host/internal/platform/secret"
)

// Registration is the result of registering a new agent. The claim secret is
// surfaced exactly once; it is consumed by the first successful claim.
type Registration struct {
	AgentID     string
	ClaimSecret string
}

// Credentials is the result of a successful claim.
type Credentials struct {
	AgentID      string
	BearerSecret string
}

// Service owns agent identities.
type Service struct {
	store storage.AgentStore
}

// NewService creates an identity service backed by the provided store.
func NewService(store storage.AgentStore) *Service {
	return &Service{store: store}
}

// Register mints a new agent identity and its single-use claim secret. The
// agent has no bearer secret until it is claimed.
func (s *Service) Register(ctx context.Context) (Registration, error) {
	agentID, err := id.NewID()
	if err != nil {
		return Registration{}, fmt.Errorf("generate agent id: %w", err)
	}
	claimSecret, err := secret.New()
	if err != nil {
		return Registration{}, fmt.Errorf("generate claim secret: %w", err)
	}

	record := storage.AgentRecord{
		AgentID:     agentID,
		ClaimSecret: claimSecret,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateAgent(ctx, record); err != nil {
		return Registration{}, fmt.Errorf("create agent: %w", err)
	}
	return Registration{AgentID: agentID, ClaimSecret: claimSecret}, nil
}

// Claim exchanges a claim secret for a bearer secret. The exchange succeeds
// at most once per agent; a wrong secret, an unknown agent, and an already
// claimed agent are indistinguishable to the caller.
func (s *Service) Claim(ctx context.Context, agentID, claimSecret string) (Credentials, error) {
	if strings.TrimSpace(agentID) == "" || strings.TrimSpace(claimSecret) == "" {
		return Credentials{}, apperrors.New(apperrors.CodeUnauthorized, "invalid claim credentials")
	}

	bearerSecret, err := secret.New()
	if err != nil {
		return Credentials{}, fmt.Errorf("generate bearer secret: %w", err)
	}

	claimed, err := s.store.ClaimAgent(ctx, agentID, claimSecret, bearerSecret)
	if errors.Is(err, storage.ErrNotFound) {
		return Credentials{}, apperrors.New(apperrors.CodeUnauthorized, "invalid claim credentials")
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("claim agent: %w", err)
	}
	return Credentials{AgentID: claimed.AgentID, BearerSecret: claimed.BearerSecret}, nil
}

// Resolve maps a bearer secret to the agent that owns it.
func (s *Service) Resolve(ctx context.Context, bearerSecret string) (string, error) {
	if strings.TrimSpace(bearerSecret) == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "missing bearer token")
	}

	agent, err := s.store.GetAgentByBearer(ctx, bearerSecret)
	if errors.Is(err, storage.ErrNotFound) {
		return "", apperrors.New(apperrors.CodeUnauthorized, "invalid bearer token")
	}
	if err != nil {
		return "", fmt.Errorf("resolve bearer: %w", err)
	}
	return agent.AgentID, nil
}
