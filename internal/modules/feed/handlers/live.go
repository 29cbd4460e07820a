package handlers

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tidemark-app/tidemark/internal/modules/feed"
)

// livePush is one websocket frame carrying freshly-merged timeline items.
type livePush struct {
	Items any `json:"items"`
}

// HandleLive handles GET /api/feed/live
//
// Upgrades to a websocket and pushes newer timeline items as they appear.
// Unlike GET /api/feed/newer this endpoint merges what it pushes: a live
// subscriber has implicitly opted into receiving the items, so fetch and
// merge are one step here.
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	userID := viewerID(r)
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := conn.CloseRead(r.Context())
	controller := h.service.Controller(ctx, userID, feedKey(r))

	interval := h.service.LivePushInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.log.Debug().Str("user_id", userID).Dur("interval", interval).Msg("Live feed subscriber connected")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items, err := controller.CheckForNewer(ctx)
			if err != nil {
				h.log.Warn().Err(err).Msg("Live fetch failed, keeping connection")
				continue
			}
			if len(items) == 0 {
				continue
			}

			controller.AddTimelineItems(items, feed.MergeOptions{New: true})

			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = wsjson.Write(writeCtx, conn, livePush{Items: items})
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("user_id", userID).Msg("Live feed subscriber disconnected")
				return
			}
		}
	}
}
