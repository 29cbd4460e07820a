// Package handlers provides HTTP handlers for user operations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/modules/users"
)

// Handler handles user HTTP requests
type Handler struct {
	repo *users.Repository
	log  zerolog.Logger
}

// NewHandler creates a new users handler
func NewHandler(repo *users.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "users").Logger(),
	}
}

// HandleGetCurrentUser handles GET /api/me
// A plain lookup of the authenticated user's profile document.
func (h *Handler) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load user")
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(user); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode user response")
	}
}
