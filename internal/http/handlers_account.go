package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"utilibill/internal/core"
)

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := s.users.GetUserByID(r.Context(), userID)
	if errors.Is(err, core.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "User lookup failed", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "account lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

type updateAccountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusUnprocessableEntity, "name and valid email are required")
		return
	}

	err := s.users.UpdateUserProfile(r.Context(), userID, req.Name, req.Email,
		strings.TrimSpace(req.Address), strings.TrimSpace(req.Postcode))
	if errors.Is(err, core.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Profile update failed", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}

	user, err := s.users.GetUserByID(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "User reload failed", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}

	slog.InfoContext(r.Context(), "Profile updated", "user_id", userID)
	respondJSON(w, http.StatusOK, toUserResponse(user))
}
