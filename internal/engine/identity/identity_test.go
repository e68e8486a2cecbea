package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/statemachine.host/internal/engine/storage"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

type fakeAgentStore struct {
	agents map[string]storage.AgentRecord
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{agents: make(map[string]storage.AgentRecord)}
}

func (f *fakeAgentStore) CreateAgent(ctx context.Context, agent storage.AgentRecord) error {
	f.agents[agent.AgentID] = agent
	return nil
}

func (f *fakeAgentStore) GetAgent(ctx context.Context, agentID string) (storage.AgentRecord, error) {
	agent, ok := f.agents[agentID]
	if !ok {
		return storage.AgentRecord{}, storage.ErrNotFound
	}
	return agent, nil
}

func (f *fakeAgentStore) ClaimAgent(ctx context.Context, agentID, claimSecret, bearerSecret string) (storage.AgentRecord, error) {
	agent, ok := f.agents[agentID]
	if !ok || agent.Claimed || agent.ClaimSecret != claimSecret {
		return storage.AgentRecord{}, storage.ErrNotFound
	}
	agent.Claimed = true
	agent.BearerSecret = bearerSecret
	f.agents[agentID] = agent
	return agent, nil
}

func (f *fakeAgentStore) GetAgentByBearer(ctx context.Context, bearerSecret string) (storage.AgentRecord, error) {
	for _, agent := range f.agents {
		if agent.Claimed && agent.BearerSecret == bearerSecret {
			return agent, nil
		}
	}
	return storage.AgentRecord{}, storage.ErrNotFound
}

func TestRegisterAndClaim(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeAgentStore())

	reg, err := svc.Register(ctx)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(reg.AgentID) != 26 {
		t.Fatalf("agent id length = %d, want 26", len(reg.AgentID))
	}
	if len(reg.ClaimSecret) != 43 {
		t.Fatalf("claim secret length = %d, want 43", len(reg.ClaimSecret))
	}

	creds, err := svc.Claim(ctx, reg.AgentID, reg.ClaimSecret)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if creds.AgentID != reg.AgentID {
		t.Fatalf("claimed agent = %q, want %q", creds.AgentID, reg.AgentID)
	}
	if len(creds.BearerSecret) != 43 {
		t.Fatalf("bearer secret length = %d, want 43", len(creds.BearerSecret))
	}

	agentID, err := svc.Resolve(ctx, creds.BearerSecret)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if agentID != reg.AgentID {
		t.Fatalf("resolved agent = %q, want %q", agentID, reg.AgentID)
	}
}

func TestClaimIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeAgentStore())

	reg, err := svc.Register(ctx)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Claim(ctx, reg.AgentID, reg.ClaimSecret); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	_, err = svc.Claim(ctx, reg.AgentID, reg.ClaimSecret)
	if apperrors.CodeOf(err) != apperrors.CodeUnauthorized {
		t.Fatalf("second claim code = %v, want UNAUTHORIZED", apperrors.CodeOf(err))
	}
}

func TestClaimRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeAgentStore())

	reg, err := svc.Register(ctx)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	cases := []struct {
		name        string
		agentID     string
		claimSecret string
	}{
		{"wrong secret", reg.AgentID, "not-the-secret"},
		{"unknown agent", "no-such-agent", reg.ClaimSecret},
		{"empty agent", "", reg.ClaimSecret},
		{"empty secret", reg.AgentID, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Claim(ctx, tc.agentID, tc.claimSecret)
			if apperrors.CodeOf(err) != apperrors.CodeUnauthorized {
				t.Fatalf("code = %v, want UNAUTHORIZED", apperrors.CodeOf(err))
			}
		})
	}
}

func TestResolveRejectsUnknownBearer(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeAgentStore())

	for _, bearer := range []string{"", "  ", "bogus-token"} {
		_, err := svc.Resolve(ctx, bearer)
		if !errors.Is(err, apperrors.New(apperrors.CodeUnauthorized, "")) {
			t.Fatalf("Resolve(%q) = %v, want UNAUTHORIZED", bearer, err)
		}
	}
}
