// Package youtube talks to the YouTube Data API v3 on behalf of the catalog sync
// and the playlist endpoints.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/models"
)

var (
	// ErrUpstream wraps every failure returned by the video platform.
	ErrUpstream = errors.New("youtube upstream error")
	// ErrNotConfigured indicates the client was built without credentials.
	ErrNotConfigured = errors.New("youtube client not configured")
)

const (
	// MaxPageSize is the largest page the Data API returns.
	MaxPageSize = 50

	defaultMaxRetries  = 3
	defaultBaseBackoff = 250 * time.Millisecond
	maxBackoff         = 5 * time.Second
)

// Config controls how the client reaches the API.
type Config struct {
	APIKey            string
	ChannelID         string
	UploadsPlaylistID string
	RequestsPerSecond float64

	// Endpoint and HTTPClient override the API transport, mostly for tests.
	Endpoint   string
	HTTPClient *http.Client

	MaxRetries  int
	BaseBackoff time.Duration
}

// Client implements the upstream contract used by the syncer and content service.
type Client struct {
	service    *yt.Service
	channelID  string
	uploadsID  string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// New constructs a Data API client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" && cfg.HTTPClient == nil {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return nil, fmt.Errorf("youtube client: channel id is required")
	}

	opts := []option.ClientOption{}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	uploads := cfg.UploadsPlaylistID
	if uploads == "" {
		uploads = UploadsPlaylistFor(cfg.ChannelID)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}

	return &Client{
		service:    service,
		channelID:  cfg.ChannelID,
		uploadsID:  uploads,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.BaseBackoff,
	}, nil
}

// UploadsPlaylistFor derives the uploads playlist of a channel ("UC..." -> "UU...").
func UploadsPlaylistFor(channelID string) string {
	if strings.HasPrefix(channelID, "UC") {
		return "UU" + strings.TrimPrefix(channelID, "UC")
	}
	return channelID
}

// ListUploads returns one page of video ids from the channel's uploads playlist.
func (c *Client) ListUploads(ctx context.Context, pageToken string, pageSize int) (models.UploadsPage, error) {
	var page models.UploadsPage
	err := c.do(ctx, "playlistItems.list", func(ctx context.Context) error {
		call := c.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(c.uploadsID).
			MaxResults(int64(clampPageSize(pageSize))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return err
		}

		page = models.UploadsPage{NextPageToken: resp.NextPageToken}
		for _, item := range resp.Items {
			if item == nil || item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			page.VideoIDs = append(page.VideoIDs, item.ContentDetails.VideoId)
		}
		return nil
	})
	return page, err
}

// VideoDetails batch-fetches detail records for up to MaxPageSize ids.
func (c *Client) VideoDetails(ctx context.Context, ids []string) ([]models.UpstreamVideo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxPageSize {
		return nil, fmt.Errorf("%w: %d ids exceeds batch size %d", ErrUpstream, len(ids), MaxPageSize)
	}

	var out []models.UpstreamVideo
	err := c.do(ctx, "videos.list", func(ctx context.Context) error {
		resp, err := c.service.Videos.List([]string{"snippet", "contentDetails", "liveStreamingDetails", "statistics"}).
			Id(ids...).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		out = make([]models.UpstreamVideo, 0, len(resp.Items))
		for _, v := range resp.Items {
			if v == nil {
				continue
			}
			out = append(out, toUpstreamVideo(v))
		}
		return nil
	})
	return out, err
}

// Playlists lists the channel's playlists.
func (c *Client) Playlists(ctx context.Context, max int) ([]models.Playlist, error) {
	var out []models.Playlist
	err := c.do(ctx, "playlists.list", func(ctx context.Context) error {
		resp, err := c.service.Playlists.List([]string{"snippet", "contentDetails"}).
			ChannelId(c.channelID).
			MaxResults(int64(clampPageSize(max))).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		out = make([]models.Playlist, 0, len(resp.Items))
		for _, p := range resp.Items {
			if p == nil {
				continue
			}
			playlist := models.Playlist{ID: p.Id}
			if p.Snippet != nil {
				playlist.Title = p.Snippet.Title
				playlist.Description = p.Snippet.Description
				playlist.Thumbnails = thumbnails(p.Snippet.Thumbnails)
			}
			if p.ContentDetails != nil {
				playlist.ItemCount = p.ContentDetails.ItemCount
			}
			out = append(out, playlist)
		}
		return nil
	})
	return out, err
}

// PlaylistItems lists the first max entries of a playlist.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string, max int) ([]models.PlaylistEntry, error) {
	var out []models.PlaylistEntry
	err := c.do(ctx, "playlistItems.list", func(ctx context.Context) error {
		resp, err := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(int64(clampPageSize(max))).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		out = make([]models.PlaylistEntry, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item == nil {
				continue
			}
			entry := models.PlaylistEntry{PlaylistID: playlistID}
			if item.ContentDetails != nil {
				entry.VideoID = item.ContentDetails.VideoId
			}
			if s := item.Snippet; s != nil {
				entry.Title = s.Title
				entry.Position = s.Position
				entry.Thumbnails = thumbnails(s.Thumbnails)
				if t, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
					entry.PublishedAt = t.UTC()
				}
				if entry.VideoID == "" && s.ResourceId != nil {
					entry.VideoID = s.ResourceId.VideoId
				}
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

// do runs fn under the rate limiter, retrying throttling and server errors with
// exponential backoff. Errors are wrapped with ErrUpstream.
func (c *Client) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.backoff
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %s: %w", ErrUpstream, op, ctx.Err())
			case <-timer.C:
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}
		logging.FromContext(ctx).Warn("retrying upstream call", "op", op, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, lastErr)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

func toUpstreamVideo(v *yt.Video) models.UpstreamVideo {
	out := models.UpstreamVideo{
		ID:             v.Id,
		HasLiveDetails: v.LiveStreamingDetails != nil,
	}
	if s := v.Snippet; s != nil {
		out.Title = s.Title
		out.PublishedAt = s.PublishedAt
		out.LiveBroadcastContent = s.LiveBroadcastContent
		out.Thumbnails = thumbnails(s.Thumbnails)
	}
	if v.ContentDetails != nil {
		out.Duration = v.ContentDetails.Duration
	}
	if v.Statistics != nil {
		out.ViewCount = strconv.FormatUint(v.Statistics.ViewCount, 10)
	}
	return out
}

func thumbnails(details *yt.ThumbnailDetails) map[string]string {
	if details == nil {
		return nil
	}
	out := map[string]string{}
	for size, thumb := range map[string]*yt.Thumbnail{
		"default":  details.Default,
		"medium":   details.Medium,
		"high":     details.High,
		"standard": details.Standard,
		"maxres":   details.Maxres,
	} {
		if thumb != nil && thumb.Url != "" {
			out[size] = thumb.Url
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
