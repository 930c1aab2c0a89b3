package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"utilibill/internal/auth"
	"utilibill/internal/core"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case req.Name == "":
		respondError(w, http.StatusUnprocessableEntity, "name is required")
		return
	case !strings.Contains(req.Email, "@"):
		respondError(w, http.StatusUnprocessableEntity, "valid email is required")
		return
	case len(req.Password) < 8:
		respondError(w, http.StatusUnprocessableEntity, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.ErrorContext(r.Context(), "Password hashing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	id, err := s.users.CreateUser(r.Context(), req.Name, req.Email, hash)
	if errors.Is(err, core.ErrUserExists) {
		respondError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "User creation failed", "error", err, "email", req.Email)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	slog.InfoContext(r.Context(), "User registered", "user_id", id, "email", req.Email)
	respondJSON(w, http.StatusCreated, userResponse{ID: id, Name: req.Name, Email: req.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, core.ErrUserNotFound) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "User lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Token issuing failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	slog.InfoContext(r.Context(), "User logged in", "user_id", user.ID)
	respondJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(user)})
}
