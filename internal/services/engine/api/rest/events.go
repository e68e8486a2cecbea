package rest

import (
	"fmt"
	"net/http"

	apperrors "github.com/louisbranch/statemachine.host/internal/platform/errors"
)

// handleEvents streams change events for one session over SSE. Each event's
// data is `{"session_id":...}`; subscribers re-read the state endpoint on
// receipt.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sessionID := r.PathValue("id")
	// Participant check; non-participants must not observe session activity.
	if _, err := s.sessions.Read(r.Context(), agentID, sessionID); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "streaming unsupported"))
		return
	}

	sub := s.notifier.Subscribe(sessionID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.Events():
			if !open {
				return
			}
			fmt.Fprintf(w, "data: {\"session_id\":%q}\n\n", event.SessionID)
			flusher.Flush()
		}
	}
}
