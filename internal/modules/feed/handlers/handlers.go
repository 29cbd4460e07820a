// Package handlers provides HTTP handlers for the feed timeline.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tidemark-app/tidemark/internal/domain"
	"github.com/tidemark-app/tidemark/internal/modules/feed"
)

// Handler handles feed HTTP requests
type Handler struct {
	service *feed.Service
	log     zerolog.Logger
}

// NewHandler creates a new feed handler
func NewHandler(service *feed.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "feed").Logger(),
	}
}

// viewerID extracts the authenticated user id. Session handling lives in
// front of this service; by the time a request lands here the id header is
// trusted.
func viewerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func feedKey(r *http.Request) string {
	if key := r.URL.Query().Get("key"); key != "" {
		return key
	}
	return "home"
}

// HandleGetFeed handles GET /api/feed
// Returns the cached timeline, bootstrapping it on first access. A feed that
// has never loaded returns null; a loaded-but-empty feed returns [].
func (h *Handler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	controller := h.service.Controller(r.Context(), userID, feedKey(r))
	if !controller.Loaded() {
		if err := controller.Bootstrap(r.Context()); err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Feed bootstrap failed")
			http.Error(w, "failed to load feed", http.StatusInternalServerError)
			return
		}
	}

	items, err := controller.Items()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to snapshot feed")
		http.Error(w, "failed to read feed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"items": items})
}

// HandleLoadOlder handles POST /api/feed/older
// Runs one backfill fetch and merges it; responds with the fetched count.
func (h *Handler) HandleLoadOlder(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	controller := h.service.Controller(r.Context(), userID, feedKey(r))
	count, err := controller.LoadMoreOlder(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Backfill fetch failed")
		http.Error(w, "failed to load older items", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"count": count})
}

// HandleCheckNewer handles GET /api/feed/newer
// Fetch-only: returns newer items without merging them. The client decides
// whether to merge via POST /api/feed/items.
func (h *Handler) HandleCheckNewer(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	controller := h.service.Controller(r.Context(), userID, feedKey(r))
	items, err := controller.CheckForNewer(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Newer fetch failed")
		http.Error(w, "failed to check for newer items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []domain.TimelineItem{}
	}

	writeJSON(w, map[string]any{"items": items})
}

// MergeRequest is the explicit merge entry point payload.
type MergeRequest struct {
	Items []domain.TimelineItem `json:"items"`
	New   bool                  `json:"new"`
	Old   bool                  `json:"old"`
}

// HandleMergeItems handles POST /api/feed/items
func (h *Handler) HandleMergeItems(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	controller := h.service.Controller(r.Context(), userID, feedKey(r))
	controller.AddTimelineItems(req.Items, feed.MergeOptions{New: req.New, Old: req.Old})

	items, err := controller.Items()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to snapshot feed after merge")
		http.Error(w, "failed to read feed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"items": items})
}

// HandleGetBoosts handles GET /api/feed/boosts
// Sponsored listings, excluding markets already present in the feed.
func (h *Handler) HandleGetBoosts(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	controller := h.service.Controller(r.Context(), userID, feedKey(r))
	boosts, err := controller.Boosts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Boost lookup failed")
		http.Error(w, "failed to load boosts", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"boosts": boosts})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
