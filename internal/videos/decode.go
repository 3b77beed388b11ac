package videos

import (
	"strconv"
	"strings"
	"time"

	"github.com/levifans/backend/internal/models"
)

// DecodeLiveState maps the upstream liveBroadcastContent field onto a LiveState.
func DecodeLiveState(liveBroadcastContent string) models.LiveState {
	switch strings.ToLower(strings.TrimSpace(liveBroadcastContent)) {
	case "live":
		return models.LiveStateLive
	case "upcoming":
		return models.LiveStateUpcoming
	default:
		return models.LiveStateNone
	}
}

// ParseViewCount parses the decimal view counter, defaulting to 0.
func ParseViewCount(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NewContentItem decodes an upstream detail record into a catalog item. Missing or
// malformed fields fall back to zero values rather than rejecting the record.
func NewContentItem(raw models.UpstreamVideo, now time.Time) models.ContentItem {
	published, err := time.Parse(time.RFC3339, raw.PublishedAt)
	if err != nil {
		published = time.Time{}
	}

	seconds := ParseDuration(raw.Duration)

	var thumbs map[string]string
	if len(raw.Thumbnails) > 0 {
		thumbs = make(map[string]string, len(raw.Thumbnails))
		for size, url := range raw.Thumbnails {
			thumbs[size] = url
		}
	}

	return models.ContentItem{
		ID:                     raw.ID,
		Title:                  raw.Title,
		PublishedAt:            published.UTC(),
		Thumbnails:             thumbs,
		DurationSeconds:        seconds,
		ViewCount:              ParseViewCount(raw.ViewCount),
		LiveState:              DecodeLiveState(raw.LiveBroadcastContent),
		HasLiveStreamingRecord: raw.HasLiveDetails,
		IsShort:                IsShort(seconds),
		UpdatedAt:              now.UTC(),
	}
}
