package rest

import "net/http"

type registerResponse struct {
	AgentID    string `json:"agent_id"`
	ClaimToken string `json:"claim_token"`
}

type claimRequest struct {
	ClaimToken string `json:"claim_token"`
}

type claimResponse struct {
	AgentID string `json:"agent_id"`
	Token   string `json:"token"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	registration, err := s.identity.Register(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		AgentID:    registration.AgentID,
		ClaimToken: registration.ClaimSecret,
	})
}

func (s *Server) handleClaimAgent(w http.ResponseWriter, r *http.Request) {
	var request claimRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}

	credentials, err := s.identity.Claim(r.Context(), r.PathValue("agent_id"), request.ClaimToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		AgentID: credentials.AgentID,
		Token:   credentials.BearerSecret,
	})
}
