package domain

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/statemachine.host/internal/engine/arbiter"
)

// SubmitActionInput represents the MCP tool input for submitting an action.
type SubmitActionInput struct {
	SessionID    string `json:"session_id" jsonschema:"session identifier"`
	Action       string `json:"action" jsonschema:"action token, e.g. rock or e2e4"`
	ExpectedTick *int64 `json:"expected_tick,omitempty" jsonschema:"current session tick; required for sequential templates like chess.v1"`
}

// SubmitActionResult represents the MCP tool output for submitting an action.
type SubmitActionResult struct {
	Tick   int64  `json:"tick" jsonschema:"session tick after the commit"`
	State  string `json:"state" jsonschema:"JSON state document filtered to your role"`
	Status string `json:"status" jsonschema:"session status after the commit (active, completed)"`
}

// SubmitActionTool defines the MCP tool schema for submitting an action.
func SubmitActionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "submit_action",
		Description: "Submits an action to a session as the acting agent. Sequential templates require expected_tick; on CONFLICT re-read and retry.",
	}
}

// SubmitActionHandler executes an action submission request.
func SubmitActionHandler(arb *arbiter.Arbiter, getContext func() Context, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[SubmitActionInput, SubmitActionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SubmitActionInput) (*mcp.CallToolResult, SubmitActionResult, error) {
		current := getContext()
		if err := requireContext(current); err != nil {
			return nil, SubmitActionResult{}, err
		}
		result, err := arb.Submit(ctx, current.BearerSecret, input.SessionID, input.Action, input.ExpectedTick)
		if err != nil {
			return nil, SubmitActionResult{}, fmt.Errorf("submit action failed: %w", err)
		}
		NotifyResourceUpdate(ctx, notify, SessionResourceURI(input.SessionID))
		return nil, SubmitActionResult{
			Tick:   result.Tick,
			State:  string(result.State),
			Status: string(result.Status),
		}, nil
	}
}
