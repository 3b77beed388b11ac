package handlers

import (
	"net/http"

	"github.com/levifans/backend/internal/cache"
	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/metrics"
)

// WebhookHandler receives the upstream push subscription traffic.
type WebhookHandler struct {
	Cache CacheInvalidator
	// Catalog is optional; when set a notification also forces the next content
	// request to run an incremental sync.
	Catalog CatalogMarker
}

// Handle implements GET and POST /sync-hook.
//
// GET is the subscription handshake and echoes hub.challenge. POST is a change
// notification and drops the cached views that may now be outdated. The
// notifier retries on any non-2xx response.
func (h WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	switch r.Method {
	case http.MethodGet:
		challenge := r.URL.Query().Get("hub.challenge")
		if challenge == "" {
			metrics.RecordWebhook("rejected")
			respondText(w, http.StatusBadRequest, "No challenge provided")
			return
		}
		logger.Info("verifying push subscription")
		metrics.RecordWebhook("verified")
		respondText(w, http.StatusOK, challenge)

	case http.MethodPost:
		logger.Info("received upstream change notification")

		if h.Cache == nil {
			metrics.RecordWebhook("failed")
			logger.Error("query cache unavailable for invalidation")
			respondText(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if err := h.Cache.Invalidate(ctx, cache.InvalidatedKeys...); err != nil {
			metrics.RecordWebhook("failed")
			logger.Error("invalidate query cache", "error", err)
			respondText(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if h.Catalog != nil {
			if err := h.Catalog.MarkStale(ctx); err != nil {
				metrics.RecordWebhook("failed")
				logger.Error("mark catalog stale", "error", err)
				respondText(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
		}

		metrics.RecordWebhook("invalidated")
		logger.Info("cached views invalidated", "keys", cache.InvalidatedKeys)
		respondText(w, http.StatusOK, "OK")

	default:
		metrics.RecordWebhook("rejected")
		respondText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}
