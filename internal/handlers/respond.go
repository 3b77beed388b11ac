package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/levifans/backend/internal/logging"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	// Server errors are logged by the handler with the underlying error.
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		logging.FromContext(ctx).Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
