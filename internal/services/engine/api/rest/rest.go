// Package rest exposes the coordination engine over HTTP: agent registration
// and claim, session lifecycle, action submission, and an SSE change-event
// stream.
package rest

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/louisbranch/statemachine.host/internal/engine/arbiter"
	"github.com/louisbranch/statemachine.host/internal/engine/identity"
	"github.com/louisbranch/statemachine.host/internal/engine/notify"
	"github.com/louisbranch/statemachine.host/internal/engine/session"
	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

// Server hosts the engine's HTTP endpoints.
type Server struct {
	identity *identity.Service
	sessions *session.Service
	arbiter  *arbiter.Arbiter
	notifier *notify.Notifier
}

// NewServer builds a REST server bound to the engine services.
func NewServer(identitySvc *identity.Service, sessions *session.Service, arb *arbiter.Arbiter, notifier *notify.Notifier) *Server {
	return &Server{
		identity: identitySvc,
		sessions: sessions,
		arbiter:  arb,
		notifier: notifier,
	}
}

// RegisterRoutes registers the engine HTTP endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /agents", s.handleRegisterAgent)
	mux.HandleFunc("POST /agents/{agent_id}/claim", s.handleClaimAgent)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions/{id}/join", s.handleJoinSession)
	mux.HandleFunc("GET /sessions/{id}/state", s.handleReadState)
	mux.HandleFunc("POST /sessions/{id}/actions", s.handleSubmitAction)
	mux.HandleFunc("GET /sessions/{id}/log", s.handleReadLog)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("event=write_response error=%v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := err.Error()
	if code == apperrors.CodeUnknown {
		log.Printf("event=internal_error error=%v", err)
		message = "internal error"
	}
	writeJSON(w, code.HTTPStatus(), errorBody{Error: errorDetail{
		Code:    string(code),
		Message: message,
	}})
}

// bearerSecret extracts the bearer token from the Authorization header. It
// returns the empty string when the header is missing or malformed; callers
// surface that as UNAUTHORIZED.
func bearerSecret(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "malformed request body", err)
	}
	return nil
}
