package rest

import (
	"encoding/json"
	"net/http"
	"time"
)

type createSessionRequest struct {
	Template     string             `json:"template"`
	Participants map[string]*string `json:"participants"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Template  string `json:"template"`
	Status    string `json:"status"`
}

type joinSessionRequest struct {
	Role string `json:"role"`
}

type joinSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type sessionStateResponse struct {
	SessionID    string          `json:"session_id"`
	Template     string          `json:"template"`
	Status       string          `json:"status"`
	Tick         int64           `json:"tick"`
	State        json.RawMessage `json:"state"`
	YourRole     string          `json:"your_role"`
	LegalActions []string        `json:"legal_actions"`
}

type sessionSummary struct {
	SessionID string `json:"session_id"`
	Template  string `json:"template"`
	Status    string `json:"status"`
	Tick      int64  `json:"tick"`
	YourRole  string `json:"your_role"`
	UpdatedAt string `json:"updated_at"`
}

type listSessionsResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

type submitActionRequest struct {
	Action       string `json:"action"`
	ExpectedTick *int64 `json:"expected_tick"`
}

type submitActionResponse struct {
	Tick   int64           `json:"tick"`
	State  json.RawMessage `json:"state"`
	Status string          `json:"status"`
}

type logEntry struct {
	Tick      int64  `json:"tick"`
	Role      string `json:"role"`
	AgentID   string `json:"agent_id"`
	Action    string `json:"action"`
	CreatedAt string `json:"created_at"`
}

type readLogResponse struct {
	Actions []logEntry `json:"actions"`
}

// authenticate resolves the request's bearer token to an agent id.
func (s *Server) authenticate(r *http.Request) (string, error) {
	return s.identity.Resolve(r.Context(), bearerSecret(r))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var request createSessionRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}

	// A null participant value marks the role as an open slot.
	assigned := make(map[string]string, len(request.Participants))
	for role, participant := range request.Participants {
		if participant == nil {
			continue
		}
		assigned[role] = *participant
	}

	view, err := s.sessions.Create(r.Context(), agentID, request.Template, assigned)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: view.SessionID,
		Template:  view.Template,
		Status:    string(view.Status),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries, err := s.sessions.List(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := listSessionsResponse{Sessions: make([]sessionSummary, 0, len(summaries))}
	for _, summary := range summaries {
		response.Sessions = append(response.Sessions, sessionSummary{
			SessionID: summary.SessionID,
			Template:  summary.Template,
			Status:    string(summary.Status),
			Tick:      summary.Tick,
			YourRole:  summary.Role,
			UpdatedAt: summary.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var request joinSessionRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}

	view, err := s.sessions.Join(r.Context(), agentID, r.PathValue("id"), request.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinSessionResponse{
		SessionID: view.SessionID,
		Status:    string(view.Status),
	})
}

func (s *Server) handleReadState(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.sessions.Read(r.Context(), agentID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	legal := view.LegalActions
	if legal == nil {
		legal = []string{}
	}
	writeJSON(w, http.StatusOK, sessionStateResponse{
		SessionID:    view.SessionID,
		Template:     view.Template,
		Status:       string(view.Status),
		Tick:         view.Tick,
		State:        json.RawMessage(view.State),
		YourRole:     view.Role,
		LegalActions: legal,
	})
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, err)
		return
	}

	var request submitActionRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.arbiter.Submit(r.Context(), bearerSecret(r), r.PathValue("id"), request.Action, request.ExpectedTick)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitActionResponse{
		Tick:   result.Tick,
		State:  json.RawMessage(result.State),
		Status: string(result.Status),
	})
}

func (s *Server) handleReadLog(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := s.sessions.ReadLog(r.Context(), agentID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	response := readLogResponse{Actions: make([]logEntry, 0, len(entries))}
	for _, entry := range entries {
		response.Actions = append(response.Actions, logEntry{
			Tick:      entry.Tick,
			Role:      entry.Role,
			AgentID:   entry.AgentID,
			Action:    entry.Action,
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}
