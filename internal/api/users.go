package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/cdl-core/internal/audit"
	"github.com/nerrad567/cdl-core/internal/auth"
)

type updateMeRequest struct {
	Email    *string `json:"email,omitempty"`
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
}

// handleGetMe returns the caller's local account, or only the token
// identity when the token was issued elsewhere.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	user, err := s.accounts.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeJSON(w, http.StatusOK, id)
			return
		}
		s.writeServiceError(w, r, err, "get profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateMe changes the caller's own name, email or password.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	var req updateMeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.accounts.UpdateProfile(r.Context(), id, auth.ProfileUpdate{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "no local account for this identity")
			return
		}
		s.writeServiceError(w, r, err, "update profile")
		return
	}

	fields := []string{}
	if req.Email != nil {
		fields = append(fields, "email")
	}
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.Password != nil {
		fields = append(fields, "password")
	}
	s.auditLog(r, audit.ActionUpdate, audit.EntityUser, user.ID, id.ID, map[string]any{"fields": fields})

	writeJSON(w, http.StatusOK, user)
}
