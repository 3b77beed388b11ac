// Package content assembles the response shapes served by the content endpoint
// from the local catalog, the query cache and the upstream playlist API.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/levifans/backend/internal/cache"
	"github.com/levifans/backend/internal/catalog"
	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/models"
	"github.com/levifans/backend/internal/videos"
)

// Mode selects how latest and featured views are derived.
type Mode string

const (
	// ModeCatalog serves categorized views from the synced catalog.
	ModeCatalog Mode = "catalog"
	// ModeCached serves views computed straight from one upstream page and kept
	// in the query cache.
	ModeCached Mode = "cached"
)

const (
	// DefaultPlaylistItems is the page size used when a client does not ask for one.
	DefaultPlaylistItems = 10
	// MaxPlaylistItems is the largest playlist page a client may request.
	MaxPlaylistItems = 50

	playlistsLimit  = 10
	uploadsPageSize = 50
)

// ErrPlaylistRequired is returned when playlist items are requested without an id.
var ErrPlaylistRequired = errors.New("playlist id is required")

var errUpstream = errors.New("upstream unavailable")

// Syncer keeps the catalog fresh.
type Syncer interface {
	EnsureSynced(ctx context.Context) error
}

// Upstream is the subset of the platform client the service reads directly.
type Upstream interface {
	ListUploads(ctx context.Context, pageToken string, pageSize int) (models.UploadsPage, error)
	VideoDetails(ctx context.Context, ids []string) ([]models.UpstreamVideo, error)
	Playlists(ctx context.Context, max int) ([]models.Playlist, error)
	PlaylistItems(ctx context.Context, playlistID string, max int) ([]models.PlaylistEntry, error)
}

// Bundle is the combined payload returned when no view type is requested.
type Bundle struct {
	Featured  []models.ContentItem `json:"featured"`
	Latest    videos.Categories    `json:"latest"`
	Playlists []models.Playlist    `json:"playlists"`
}

// Deps wires the service.
type Deps struct {
	Mode     Mode
	Catalog  catalog.Store
	Syncer   Syncer
	Upstream Upstream
	Cache    cache.QueryCache
	CacheTTL time.Duration
}

// Service answers content queries.
type Service struct {
	mode     Mode
	catalog  catalog.Store
	syncer   Syncer
	upstream Upstream
	cache    cache.QueryCache
	ttl      time.Duration
	now      func() time.Time
}

// NewService validates the dependencies for the selected mode.
func NewService(deps Deps) (*Service, error) {
	if deps.Mode == "" {
		deps.Mode = ModeCatalog
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("content service: query cache is required")
	}
	if deps.Upstream == nil {
		return nil, fmt.Errorf("content service: upstream is required")
	}

	switch deps.Mode {
	case ModeCatalog:
		if deps.Catalog == nil || deps.Syncer == nil {
			return nil, fmt.Errorf("content service: catalog mode requires a catalog and a syncer")
		}
	case ModeCached:
	default:
		return nil, fmt.Errorf("content service: unknown mode %q", deps.Mode)
	}

	if deps.CacheTTL <= 0 {
		deps.CacheTTL = cache.DefaultTTL
	}

	return &Service{
		mode:     deps.Mode,
		catalog:  deps.Catalog,
		syncer:   deps.Syncer,
		upstream: deps.Upstream,
		cache:    deps.Cache,
		ttl:      deps.CacheTTL,
		now:      time.Now,
	}, nil
}

// Latest returns the categorized livestream, video and shorts rows.
func (s *Service) Latest(ctx context.Context) (videos.Categories, error) {
	if s.mode == ModeCached {
		return degrade(ctx, "latest", videos.Categorize(nil), func() (videos.Categories, error) {
			return cache.Fetch(ctx, s.cache, cache.KeyLatest, s.ttl, func(ctx context.Context) (videos.Categories, error) {
				items, err := s.recentUploads(ctx)
				if err != nil {
					return videos.Categories{}, err
				}
				return videos.Categorize(items), nil
			})
		})
	}

	items, err := s.syncedCatalog(ctx)
	if err != nil {
		return videos.Categories{}, err
	}
	return videos.Categorize(items), nil
}

// Featured returns the most viewed long-form items.
func (s *Service) Featured(ctx context.Context) ([]models.ContentItem, error) {
	if s.mode == ModeCached {
		return degrade(ctx, "featured", []models.ContentItem{}, func() ([]models.ContentItem, error) {
			return cache.Fetch(ctx, s.cache, cache.KeyFeatured, s.ttl, func(ctx context.Context) ([]models.ContentItem, error) {
				items, err := s.recentUploads(ctx)
				if err != nil {
					return nil, err
				}
				return videos.Featured(items, videos.DefaultFeatured), nil
			})
		})
	}

	items, err := s.syncedCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return videos.Featured(items, videos.DefaultFeatured), nil
}

// Playlists returns the channel's playlists. Results are always served through
// the query cache.
func (s *Service) Playlists(ctx context.Context) ([]models.Playlist, error) {
	return degrade(ctx, "playlists", []models.Playlist{}, func() ([]models.Playlist, error) {
		return s.cachedPlaylists(ctx)
	})
}

// cachedPlaylists reads playlists through the query cache and reports upstream
// failures as errUpstream.
func (s *Service) cachedPlaylists(ctx context.Context) ([]models.Playlist, error) {
	return cache.Fetch(ctx, s.cache, cache.KeyPlaylists, s.ttl, func(ctx context.Context) ([]models.Playlist, error) {
		playlists, err := s.upstream.Playlists(ctx, playlistsLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errUpstream, err)
		}
		if playlists == nil {
			playlists = []models.Playlist{}
		}
		return playlists, nil
	})
}

// PlaylistItems returns up to max entries of one playlist. max is clamped to
// 1..MaxPlaylistItems; zero selects DefaultPlaylistItems.
func (s *Service) PlaylistItems(ctx context.Context, playlistID string, max int) ([]models.PlaylistEntry, error) {
	if playlistID == "" {
		return nil, ErrPlaylistRequired
	}
	max = ClampPlaylistItems(max)

	key := cache.PlaylistItemsKey(playlistID, max)
	return degrade(ctx, "playlist_items", []models.PlaylistEntry{}, func() ([]models.PlaylistEntry, error) {
		return cache.Fetch(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.PlaylistEntry, error) {
			entries, err := s.upstream.PlaylistItems(ctx, playlistID, max)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errUpstream, err)
			}
			if entries == nil {
				entries = []models.PlaylistEntry{}
			}
			return entries, nil
		})
	})
}

// ClampPlaylistItems applies the playlist page size bounds.
func ClampPlaylistItems(max int) int {
	switch {
	case max == 0:
		return DefaultPlaylistItems
	case max < 1:
		return 1
	case max > MaxPlaylistItems:
		return MaxPlaylistItems
	default:
		return max
	}
}

// Bundle returns featured, latest and playlists in one payload. The catalog
// read and the playlist fetch run concurrently. In cached mode an upstream
// failure in either part yields the empty bundle, which is not cached.
func (s *Service) Bundle(ctx context.Context) (Bundle, error) {
	if s.mode == ModeCached {
		return degrade(ctx, "bundle", emptyBundle(), func() (Bundle, error) {
			return cache.Fetch(ctx, s.cache, cache.KeyAll, s.ttl, s.assembleBundle)
		})
	}
	return s.assembleBundle(ctx)
}

func (s *Service) assembleBundle(ctx context.Context) (Bundle, error) {
	var (
		items     []models.ContentItem
		playlists []models.Playlist
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if s.mode == ModeCached {
			items, err = s.recentUploads(gctx)
			return err
		}
		items, err = s.syncedCatalog(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		if s.mode == ModeCached {
			playlists, err = s.cachedPlaylists(gctx)
			return err
		}
		playlists, err = s.Playlists(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Bundle{}, err
	}

	return Bundle{
		Featured:  videos.Featured(items, videos.DefaultFeatured),
		Latest:    videos.Categorize(items),
		Playlists: playlists,
	}, nil
}

func emptyBundle() Bundle {
	return Bundle{
		Featured:  []models.ContentItem{},
		Latest:    videos.Categorize(nil),
		Playlists: []models.Playlist{},
	}
}

func (s *Service) syncedCatalog(ctx context.Context) ([]models.ContentItem, error) {
	if err := s.syncer.EnsureSynced(ctx); err != nil {
		return nil, err
	}
	items, err := s.catalog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return items, nil
}

// recentUploads decodes the newest page of uploads without touching the catalog.
func (s *Service) recentUploads(ctx context.Context) ([]models.ContentItem, error) {
	page, err := s.upstream.ListUploads(ctx, "", uploadsPageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUpstream, err)
	}
	details, err := s.upstream.VideoDetails(ctx, page.VideoIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUpstream, err)
	}

	now := s.now()
	items := make([]models.ContentItem, 0, len(details))
	for _, raw := range details {
		items = append(items, videos.NewContentItem(raw, now))
	}
	return items, nil
}

// degrade runs fetch and turns upstream failures into the empty fallback. Store
// failures are returned unchanged.
func degrade[T any](ctx context.Context, view string, fallback T, fetch func() (T, error)) (T, error) {
	value, err := fetch()
	if errors.Is(err, errUpstream) {
		logging.FromContext(ctx).Warn("upstream unavailable, serving empty view", "view", view, "error", err)
		return fallback, nil
	}
	return value, err
}
