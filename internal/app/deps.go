package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/levifans/backend/internal/auth"
	"github.com/levifans/backend/internal/cache"
	"github.com/levifans/backend/internal/catalog"
	"github.com/levifans/backend/internal/config"
	"github.com/levifans/backend/internal/content"
	"github.com/levifans/backend/internal/db"
	"github.com/levifans/backend/internal/handlers"
	"github.com/levifans/backend/internal/middleware"
	"github.com/levifans/backend/internal/repositories"
	"github.com/levifans/backend/internal/syncer"
	"github.com/levifans/backend/internal/youtube"
)

const (
	adminRequestsPerMinute = 6
	limiterIdleTTL         = 10 * time.Minute
)

// backend bundles the storage side: the catalog, its health probe and the
// query cache.
type backend struct {
	store  catalog.Store
	pinger catalog.Pinger
	cache  cache.QueryCache
	close  func()
}

// openBackend connects the configured store. Redis backs both the catalog and
// the query cache; the other stores keep the query cache in process.
func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Store {
	case config.StoreRedis:
		client, err := catalog.NewRedisClient(ctx, catalog.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return backend{}, err
		}
		store := catalog.NewRedisStore(client)
		return backend{
			store:  store,
			pinger: store,
			cache:  cache.NewRedisQueryCache(client),
			close:  func() { _ = client.Close() },
		}, nil

	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, err
		}
		store := repositories.NewPostgresCatalogStore(pool)
		return backend{
			store:  store,
			pinger: store,
			cache:  cache.NewMemoryQueryCache(),
			close:  pool.Close,
		}, nil

	case config.StoreMemory:
		store := catalog.NewMemoryStore()
		return backend{
			store:  store,
			pinger: store,
			cache:  cache.NewMemoryQueryCache(),
			close:  func() {},
		}, nil

	default:
		return backend{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// newUpstream builds the Data API client from configuration.
func newUpstream(ctx context.Context, cfg config.Config) (*youtube.Client, error) {
	return youtube.New(ctx, youtube.Config{
		APIKey:            cfg.YouTubeAPIKey,
		ChannelID:         cfg.YouTubeChannelID,
		UploadsPlaylistID: cfg.YouTubeUploadsPlaylistID,
		RequestsPerSecond: cfg.UpstreamRPS,
	})
}

// services are the request-side collaborators built on top of a backend.
type services struct {
	syncer  *syncer.Orchestrator
	content *content.Service
}

func buildServices(cfg config.Config, be backend, upstream content.Upstream) (services, error) {
	syncCfg := syncer.DefaultConfig()
	syncCfg.Interval = cfg.SyncInterval
	syncCfg.LockTTL = cfg.SyncLockTTL
	orchestrator := syncer.New(be.store, upstream, syncCfg)

	svc, err := content.NewService(content.Deps{
		Mode:     content.Mode(cfg.ContentMode),
		Catalog:  be.store,
		Syncer:   orchestrator,
		Upstream: upstream,
		Cache:    be.cache,
		CacheTTL: cfg.QueryCacheTTL,
	})
	if err != nil {
		return services{}, err
	}
	return services{syncer: orchestrator, content: svc}, nil
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(cfg config.Config, be backend, svc services) (handlers.Dependencies, error) {
	deps := handlers.Dependencies{
		Content:        svc.content,
		Cache:          be.cache,
		Catalog:        be.store,
		Syncer:         svc.syncer,
		Health:         be.pinger,
		ContentLimiter: middleware.NewIPRateLimiter(cfg.ContentRequestsPerMinute, time.Minute, contentBurst(cfg.ContentRequestsPerMinute), limiterIdleTTL),
		AdminLimiter:   middleware.NewIPRateLimiter(adminRequestsPerMinute, time.Minute, 2, limiterIdleTTL),
	}

	if cfg.AdminTokenHash != "" {
		verifier, err := auth.NewTokenVerifier(cfg.AdminTokenHash)
		if err != nil {
			return handlers.Dependencies{}, err
		}
		deps.Tokens = verifier
	}
	return deps, nil
}

func contentBurst(perMinute int) int {
	if burst := perMinute / 4; burst > 1 {
		return burst
	}
	return 1
}

// newHandler mounts the routes behind CORS and request logging.
func newHandler(logger *slog.Logger, deps handlers.Dependencies) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)
	return middleware.RequestLogger(logger)(middleware.CORS(mux))
}
