// Package cache stores serialized query results for a bounded time so repeated
// requests for the same shape do not reach the upstream platform.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/metrics"
)

// DefaultTTL is how long a cached query result stays valid.
const DefaultTTL = 600 * time.Second

const (
	KeyAll       = "yt_data_all"
	KeyFeatured  = "yt_data_featured"
	KeyLatest    = "yt_data_latest"
	KeyPlaylists = "yt_data_playlists"

	playlistItemsPrefix = "yt_data_playlist_items"
)

// InvalidatedKeys lists the entries dropped when the upstream announces new content.
// Playlist entries are left to expire on their own.
var InvalidatedKeys = []string{KeyAll, KeyFeatured, KeyLatest}

// PlaylistItemsKey returns the cache key for one playlist at one page size.
func PlaylistItemsKey(playlistID string, limit int) string {
	return playlistItemsPrefix + ":" + playlistID + ":" + strconv.Itoa(limit)
}

// QueryCache stores opaque payloads with a per-entry TTL.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Fetch returns the cached value for key, or computes it, stores it for ttl and
// returns it. Compute errors are returned and never cached. Concurrent misses
// may each compute.
func Fetch[T any](ctx context.Context, c QueryCache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	payload, ok, err := c.Get(ctx, key)
	if err != nil {
		metrics.RecordQueryCache("error")
		return zero, err
	}
	if ok {
		var value T
		if err := json.Unmarshal(payload, &value); err == nil {
			metrics.RecordQueryCache("hit")
			return value, nil
		}
		logging.FromContext(ctx).Warn("discarding undecodable cache entry", "key", key)
	}
	metrics.RecordQueryCache("miss")

	value, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.Put(ctx, key, data, ttl); err != nil {
		return zero, err
	}
	return value, nil
}
