package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"expenseflow/internal/core"
	"expenseflow/internal/session"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type identityResponse struct {
	User    core.Identity `json:"user"`
	Warning string        `json:"warning,omitempty"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	id, err := s.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondAuthResult(w, r, id, err)
		return
	}
	respondJSON(w, http.StatusOK, identityResponse{User: id})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	id, err := s.sessions.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.respondAuthResult(w, r, id, err)
		return
	}
	respondJSON(w, http.StatusCreated, identityResponse{User: id})
}

// respondAuthResult maps session errors onto HTTP statuses. A failed
// durable write still signs the user in for this process lifetime.
func (s *Server) respondAuthResult(w http.ResponseWriter, r *http.Request, id core.Identity, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "email or password not accepted")
	case errors.Is(err, session.ErrEmptyName):
		respondError(w, http.StatusUnprocessableEntity, "invalid_name", "display name required")
	case errors.Is(err, session.ErrPersistence):
		respondJSON(w, http.StatusOK, identityResponse{
			User:    id,
			Warning: "session will not survive a restart; durable storage is unavailable",
		})
	default:
		logger(r.Context()).ErrorContext(r.Context(), "Auth failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "authentication failed")
	}
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.SignOut(r.Context()); err != nil {
		logger(r.Context()).WarnContext(r.Context(), "Sign-out persist failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessions.Current()
	if !ok {
		respondError(w, http.StatusUnauthorized, "not_signed_in", "no active session")
		return
	}
	respondJSON(w, http.StatusOK, identityResponse{User: id})
}
