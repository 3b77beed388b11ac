package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/levifans/backend/internal/auth"
	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/syncer"
)

// AdminHandler exposes operator actions.
type AdminHandler struct {
	Syncer  Resyncer
	Tokens  TokenVerifier
	Limiter RateLimiter
}

// Sync handles POST /admin/sync[?deep=true]. The pass runs to completion before
// the response is written.
func (h AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "admin") {
		rejectRateLimited(ctx, w)
		return
	}
	if h.Tokens == nil || h.Syncer == nil {
		logger.Error("admin dependencies unavailable", "hasTokens", h.Tokens != nil, "hasSyncer", h.Syncer != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "admin services unavailable"})
		return
	}
	if err := h.Tokens.Verify(auth.BearerToken(r)); err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	deep := false
	if raw := r.URL.Query().Get("deep"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "deep must be a boolean"})
			return
		}
		deep = parsed
	}

	logger.Info("operator requested sync", "deep", deep)
	err := h.Syncer.Resync(ctx, deep)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "sync already in progress"})
	case err != nil:
		logger.Error("operator sync failed", "deep", deep, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "sync failed"})
	default:
		respondJSON(ctx, w, http.StatusOK, map[string]any{"status": "completed", "deep": deep})
	}
}
