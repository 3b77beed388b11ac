package models

import "time"

// LiveState mirrors the broadcast state the upstream platform reports for a video.
type LiveState string

const (
	LiveStateNone     LiveState = "none"
	LiveStateUpcoming LiveState = "upcoming"
	LiveStateLive     LiveState = "live"
)

// ContentItem is one video in the locally materialized catalog.
type ContentItem struct {
	ID                     string            `json:"id"`
	Title                  string            `json:"title"`
	PublishedAt            time.Time         `json:"publishedAt"`
	Thumbnails             map[string]string `json:"thumbnails,omitempty"`
	DurationSeconds        int               `json:"durationSeconds"`
	ViewCount              int64             `json:"viewCount"`
	LiveState              LiveState         `json:"liveState"`
	HasLiveStreamingRecord bool              `json:"hasLiveStreamingRecord"`
	IsShort                bool              `json:"isShort"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

// IsLive reports whether the item is broadcasting right now.
func (c ContentItem) IsLive() bool {
	return c.LiveState == LiveStateLive
}

// UpstreamVideo is a detail record as returned by the video platform, before decoding.
type UpstreamVideo struct {
	ID                   string
	Title                string
	PublishedAt          string
	Thumbnails           map[string]string
	Duration             string
	LiveBroadcastContent string
	HasLiveDetails       bool
	ViewCount            string
}

// UploadsPage is one page of the channel's uploads listing.
type UploadsPage struct {
	VideoIDs      []string
	NextPageToken string
}

// Playlist describes a channel playlist.
type Playlist struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Thumbnails  map[string]string `json:"thumbnails,omitempty"`
	ItemCount   int64             `json:"itemCount"`
}

// PlaylistEntry is a single video reference inside a playlist.
type PlaylistEntry struct {
	VideoID     string            `json:"videoId"`
	PlaylistID  string            `json:"playlistId"`
	Title       string            `json:"title"`
	Position    int64             `json:"position"`
	PublishedAt time.Time         `json:"publishedAt"`
	Thumbnails  map[string]string `json:"thumbnails,omitempty"`
}
