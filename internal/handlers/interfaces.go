package handlers

import (
	"context"

	"github.com/levifans/backend/internal/content"
	"github.com/levifans/backend/internal/models"
	"github.com/levifans/backend/internal/videos"
)

// ContentService answers the view types served by GET /content.
type ContentService interface {
	Latest(ctx context.Context) (videos.Categories, error)
	Featured(ctx context.Context) ([]models.ContentItem, error)
	Playlists(ctx context.Context) ([]models.Playlist, error)
	PlaylistItems(ctx context.Context, playlistID string, max int) ([]models.PlaylistEntry, error)
	Bundle(ctx context.Context) (content.Bundle, error)
}

// CacheInvalidator drops query cache entries.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// CatalogMarker flags the catalog for an early refresh.
type CatalogMarker interface {
	MarkStale(ctx context.Context) error
}

// Resyncer runs an operator-requested sync pass.
type Resyncer interface {
	Resync(ctx context.Context, deep bool) error
}

// TokenVerifier authenticates operator requests.
type TokenVerifier interface {
	Verify(token string) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
