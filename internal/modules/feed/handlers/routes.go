package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all feed routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/feed", func(r chi.Router) {
		r.Get("/", h.HandleGetFeed)
		r.Post("/older", h.HandleLoadOlder)
		r.Get("/newer", h.HandleCheckNewer)
		r.Post("/items", h.HandleMergeItems)
		r.Get("/boosts", h.HandleGetBoosts)
		r.Get("/live", h.HandleLive)
	})
}
