// Package domain defines the MCP tool and resource bindings for the
// coordination engine: tool schemas, their handlers, and the session
// resource.
package domain

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

// Context carries the credentials of the agent this MCP server acts as.
// It is empty until claim_agent succeeds.
type Context struct {
	AgentID      string
	BearerSecret string
}

// ResourceUpdateNotifier signals MCP clients that a resource changed.
type ResourceUpdateNotifier func(ctx context.Context, uri string)

// NotifyResourceUpdate emits a best-effort resource update notification.
func NotifyResourceUpdate(ctx context.Context, notify ResourceUpdateNotifier, uri string) {
	if notify == nil || uri == "" {
		return
	}
	notify(ctx, uri)
}

// SessionResourceURI renders the canonical resource URI for a session.
func SessionResourceURI(sessionID string) string {
	return fmt.Sprintf("session://%s", sessionID)
}

// ParseSessionURI extracts the session id from a session://{session_id} URI.
func ParseSessionURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "session://")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", fmt.Errorf("invalid session resource URI %q; expected session://{session_id}", uri)
	}
	return rest, nil
}

// requireContext fails when no agent has been claimed yet.
func requireContext(current Context) error {
	if current.BearerSecret == "" {
		return apperrors.New(apperrors.CodeUnauthorized,
			"no agent credentials; call register_agent and claim_agent first")
	}
	return nil
}
