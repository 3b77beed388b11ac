package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/levifans/backend/internal/content"
	"github.com/levifans/backend/internal/logging"
)

const (
	typeLatest        = "latest"
	typeFeatured      = "featured"
	typePlaylists     = "playlists"
	typePlaylistItems = "playlistItems"
)

type failureResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ContentHandler serves the catalog views.
type ContentHandler struct {
	Content ContentService
	Limiter RateLimiter
}

// Handle implements GET /content?type=latest|featured|playlists|playlistItems.
// Without a type it returns the bundle of featured, latest and playlists.
func (h ContentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "content") {
		rejectRateLimited(ctx, w)
		return
	}
	if h.Content == nil {
		logger.Error("content service unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, failureResponse{Error: "Sync Failed", Message: "content service unavailable"})
		return
	}

	query := r.URL.Query()
	var (
		payload any
		err     error
	)

	switch kind := query.Get("type"); kind {
	case typeLatest:
		payload, err = h.Content.Latest(ctx)
	case typeFeatured:
		payload, err = h.Content.Featured(ctx)
	case typePlaylists:
		payload, err = h.Content.Playlists(ctx)
	case typePlaylistItems:
		playlistID := strings.TrimSpace(query.Get("playlistId"))
		if playlistID == "" {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "playlistId is required"})
			return
		}
		max, ok := parseMaxResults(query.Get("maxResults"))
		if !ok {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "maxResults must be an integer"})
			return
		}
		payload, err = h.Content.PlaylistItems(ctx, playlistID, max)
	case "":
		payload, err = h.Content.Bundle(ctx)
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unknown content type " + strconv.Quote(kind)})
		return
	}

	if errors.Is(err, content.ErrPlaylistRequired) {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "playlistId is required"})
		return
	}
	if err != nil {
		logger.Error("content request failed", "type", query.Get("type"), "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, failureResponse{
			Error:   "Sync Failed",
			Message: "content store unavailable",
		})
		return
	}

	respondJSON(ctx, w, http.StatusOK, payload)
}

// parseMaxResults reads the playlist page size. Absent means default; the value
// is clamped to the allowed range.
func parseMaxResults(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return content.DefaultPlaylistItems, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	return content.ClampPlaylistItems(n), true
}
