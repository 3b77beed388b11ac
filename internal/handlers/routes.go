package handlers

import (
	"net/http"

	"github.com/levifans/backend/internal/metrics"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux. The admin route
// is only mounted when a token verifier is configured.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Store: deps.Health}
	content := ContentHandler{Content: deps.Content, Limiter: deps.ContentLimiter}
	webhook := WebhookHandler{Cache: deps.Cache, Catalog: deps.Catalog}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/content", content.Handle)
	mux.HandleFunc("/sync-hook", webhook.Handle)
	mux.Handle("/metrics", metrics.Handler())

	if deps.Tokens != nil {
		admin := AdminHandler{Syncer: deps.Syncer, Tokens: deps.Tokens, Limiter: deps.AdminLimiter}
		mux.HandleFunc("/admin/sync", admin.Sync)
	}
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Content        ContentService
	Cache          CacheInvalidator
	Catalog        CatalogMarker
	Syncer         Resyncer
	Tokens         TokenVerifier
	Health         Pinger
	ContentLimiter RateLimiter
	AdminLimiter   RateLimiter
}
