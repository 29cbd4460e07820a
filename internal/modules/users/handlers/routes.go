package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all user routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.HandleGetCurrentUser)
}
