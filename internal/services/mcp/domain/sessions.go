package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/statemachine.host/internal/engine/session"
)

// SessionView is the tool-facing shape of a participant's session snapshot.
type SessionView struct {
	SessionID    string   `json:"session_id" jsonschema:"session identifier"`
	Template     string   `json:"template" jsonschema:"template identifier, e.g. rps.v1 or chess.v1"`
	Status       string   `json:"status" jsonschema:"session status (waiting, active, completed)"`
	Tick         int64    `json:"tick" jsonschema:"number of committed actions"`
	State        string   `json:"state" jsonschema:"JSON state document filtered to your role"`
	YourRole     string   `json:"your_role" jsonschema:"role this agent holds in the session"`
	LegalActions []string `json:"legal_actions" jsonschema:"actions your role may take right now"`
}

func toSessionView(view session.View) SessionView {
	legal := view.LegalActions
	if legal == nil {
		legal = []string{}
	}
	return SessionView{
		SessionID:    view.SessionID,
		Template:     view.Template,
		Status:       string(view.Status),
		Tick:         view.Tick,
		State:        string(view.State),
		YourRole:     view.Role,
		LegalActions: legal,
	}
}

// CreateSessionInput represents the MCP tool input for creating a session.
type CreateSessionInput struct {
	Template     string            `json:"template" jsonschema:"template identifier, e.g. rps.v1 or chess.v1"`
	Participants map[string]string `json:"participants,omitempty" jsonschema:"role to agent id assignments; omitted roles stay open for join_session"`
}

// CreateSessionTool defines the MCP tool schema for creating a session.
func CreateSessionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "create_session",
		Description: "Creates a session from a template. Assign roles to agent ids; leave roles out to keep them open. You must assign yourself a role.",
	}
}

// CreateSessionHandler executes a session creation request.
func CreateSessionHandler(sessions *session.Service, getContext func() Context) mcp.ToolHandlerFor[CreateSessionInput, SessionView] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreateSessionInput) (*mcp.CallToolResult, SessionView, error) {
		current := getContext()
		if err := requireContext(current); err != nil {
			return nil, SessionView{}, err
		}
		view, err := sessions.Create(ctx, current.AgentID, input.Template, input.Participants)
		if err != nil {
			return nil, SessionView{}, fmt.Errorf("create session failed: %w", err)
		}
		return nil, toSessionView(view), nil
	}
}

// JoinSessionInput represents the MCP tool input for joining a session.
type JoinSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session identifier"`
	Role      string `json:"role,omitempty" jsonschema:"role to claim; omitted picks the first open role"`
}

// JoinSessionTool defines the MCP tool schema for joining a session.
func JoinSessionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "join_session",
		Description: "Joins a waiting session as the acting agent. Without a role, the first open role in template order is assigned.",
	}
}

// JoinSessionHandler executes a session join request.
func JoinSessionHandler(sessions *session.Service, getContext func() Context, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[JoinSessionInput, SessionView] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input JoinSessionInput) (*mcp.CallToolResult, SessionView, error) {
		current := getContext()
		if err := requireContext(current); err != nil {
			return nil, SessionView{}, err
		}
		view, err := sessions.Join(ctx, current.AgentID, input.SessionID, input.Role)
		if err != nil {
			return nil, SessionView{}, fmt.Errorf("join session failed: %w", err)
		}
		NotifyResourceUpdate(ctx, notify, SessionResourceURI(view.SessionID))
		return nil, toSessionView(view), nil
	}
}

// GetSessionStateInput represents the MCP tool input for reading a session.
type GetSessionStateInput struct {
	SessionID string `json:"session_id" jsonschema:"session identifier"`
}

// GetSessionStateTool defines the MCP tool schema for reading a session.
func GetSessionStateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_session_state",
		Description: "Reads a session's current state as seen by the acting agent's role, including its legal actions.",
	}
}

// GetSessionStateHandler executes a session read request.
func GetSessionStateHandler(sessions *session.Service, getContext func() Context) mcp.ToolHandlerFor[GetSessionStateInput, SessionView] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetSessionStateInput) (*mcp.CallToolResult, SessionView, error) {
		current := getContext()
		if err := requireContext(current); err != nil {
			return nil, SessionView{}, err
		}
		view, err := sessions.Read(ctx, current.AgentID, input.SessionID)
		if err != nil {
			return nil, SessionView{}, fmt.Errorf("get session state failed: %w", err)
		}
		return nil, toSessionView(view), nil
	}
}

// ListMySessionsInput represents the MCP tool input for listing sessions.
type ListMySessionsInput struct{}

// SessionSummary is one row in the session listing.
type SessionSummary struct {
	SessionID string `json:"session_id" jsonschema:"session identifier"`
	Template  string `json:"template" jsonschema:"template identifier"`
	Status    string `json:"status" jsonschema:"session status (waiting, active, completed)"`
	Tick      int64  `json:"tick" jsonschema:"number of committed actions"`
	YourRole  string `json:"your_role" jsonschema:"role this agent holds in the session"`
	UpdatedAt string `json:"updated_at" jsonschema:"RFC3339 timestamp of the last change"`
}

// ListMySessionsResult represents the MCP tool output for listing sessions.
type ListMySessionsResult struct {
	Sessions []SessionSummary `json:"sessions" jsonschema:"sessions the acting agent participates in, most recently updated first"`
}

// ListMySessionsTool defines the MCP tool schema for listing sessions.
func ListMySessionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_my_sessions",
		Description: "Lists the sessions the acting agent participates in, most recently updated first.",
	}
}

// ListMySessionsHandler executes a session listing request.
func ListMySessionsHandler(sessions *session.Service, getContext func() Context) mcp.ToolHandlerFor[ListMySessionsInput, ListMySessionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListMySessionsInput) (*mcp.CallToolResult, ListMySessionsResult, error) {
		current := getContext()
		if err := requireContext(current); err != nil {
			return nil, ListMySessionsResult{}, err
		}
		summaries, err := sessions.List(ctx, current.AgentID)
		if err != nil {
			return nil, ListMySessionsResult{}, fmt.Errorf("list sessions failed: %w", err)
		}
		result := ListMySessionsResult{Sessions: make([]SessionSummary, 0, len(summaries))}
		for _, summary := range summaries {
			result.Sessions = append(result.Sessions, SessionSummary{
				SessionID: summary.SessionID,
				Template:  summary.Template,
				Status:    string(summary.Status),
				Tick:      summary.Tick,
				YourRole:  summary.Role,
				UpdatedAt: summary.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		return nil, result, nil
	}
}

// SessionResourceTemplate defines the readable session resource.
func SessionResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "session",
		Title:       "Session",
		Description: "Readable session snapshot for the acting agent. URI format: session://{session_id}",
		MIMEType:    "application/json",
		URITemplate: "session://{session_id}",
	}
}

// SessionResourceHandler returns a readable session snapshot resource.
func SessionResourceHandler(sessions *session.Service, getContext func() Context) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("session ID is required; use URI format session://{session_id}")
		}
		uri := req.Params.URI

		sessionID, err := ParseSessionURI(uri)
		if err != nil {
			return nil, err
		}

		current := getContext()
		if err := requireContext(current); err != nil {
			return nil, err
		}

		view, err := sessions.Read(ctx, current.AgentID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("read session failed: %w", err)
		}

		data, err := json.Marshal(toSessionView(view))
		if err != nil {
			return nil, fmt.Errorf("marshal session payload: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}
