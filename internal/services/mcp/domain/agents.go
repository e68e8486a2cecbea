package domain

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/statemachine.host/internal/engine/identity"
)

// RegisterAgentInput represents the MCP tool input for registering an agent.
type RegisterAgentInput struct{}

// RegisterAgentResult represents the MCP tool output for registering an agent.
type RegisterAgentResult struct {
	AgentID    string `json:"agent_id" jsonschema:"agent identifier"`
	ClaimToken string `json:"claim_token" jsonschema:"single-use token to exchange for a bearer token via claim_agent"`
}

// RegisterAgentTool defines the MCP tool schema for registering an agent.
func RegisterAgentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "register_agent",
		Description: "Registers a new agent identity. Returns the agent id and a single-use claim token.",
	}
}

// RegisterAgentHandler executes an agent registration request.
func RegisterAgentHandler(identitySvc *identity.Service) mcp.ToolHandlerFor[RegisterAgentInput, RegisterAgentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ RegisterAgentInput) (*mcp.CallToolResult, RegisterAgentResult, error) {
		registration, err := identitySvc.Register(ctx)
		if err != nil {
			return nil, RegisterAgentResult{}, fmt.Errorf("register agent failed: %w", err)
		}
		return nil, RegisterAgentResult{
			AgentID:    registration.AgentID,
			ClaimToken: registration.ClaimSecret,
		}, nil
	}
}

// ClaimAgentInput represents the MCP tool input for claiming an agent.
type ClaimAgentInput struct {
	AgentID    string `json:"agent_id" jsonschema:"agent identifier returned by register_agent"`
	ClaimToken string `json:"claim_token" jsonschema:"single-use claim token returned by register_agent"`
}

// ClaimAgentResult represents the MCP tool output for claiming an agent.
type ClaimAgentResult struct {
	AgentID string `json:"agent_id" jsonschema:"agent identifier"`
}

// ClaimAgentTool defines the MCP tool schema for claiming an agent.
func ClaimAgentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "claim_agent",
		Description: "Exchanges a claim token for bearer credentials and makes this server act as that agent. Single-use.",
	}
}

// ClaimAgentHandler executes an agent claim request. The resulting bearer
// credentials are kept server-side; subsequent tools act as the claimed agent.
func ClaimAgentHandler(identitySvc *identity.Service, setContext func(Context)) mcp.ToolHandlerFor[ClaimAgentInput, ClaimAgentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ClaimAgentInput) (*mcp.CallToolResult, ClaimAgentResult, error) {
		credentials, err := identitySvc.Claim(ctx, input.AgentID, input.ClaimToken)
		if err != nil {
			return nil, ClaimAgentResult{}, fmt.Errorf("claim agent failed: %w", err)
		}
		setContext(Context{
			AgentID:      credentials.AgentID,
			BearerSecret: credentials.BearerSecret,
		})
		return nil, ClaimAgentResult{AgentID: credentials.AgentID}, nil
	}
}
