package videos

import (
	"slices"
	"sort"

	"github.com/levifans/backend/internal/models"
)

// Row sizes returned by Categorize.
const (
	MaxLivestreams = 3
	MaxVideos      = 12
	MaxShorts      = 10
	// DefaultFeatured is the number of items returned by Featured when n <= 0.
	DefaultFeatured = 5
)

// Categories groups the catalog into the rows rendered by the front-end.
type Categories struct {
	Livestreams []models.ContentItem `json:"livestreams"`
	Videos      []models.ContentItem `json:"videos"`
	Shorts      []models.ContentItem `json:"shorts"`
}

// Categorize buckets items into livestreams, regular videos and shorts.
//
// Items are ordered newest first. A live item only ever lands in Livestreams.
// Any other item with a live-streaming record (ended or scheduled) appears
// under Livestreams after the active ones; upcoming items without one are not
// shown. Shorts are drawn from everything that is not currently live. The
// input slice is not modified.
func Categorize(items []models.ContentItem) Categories {
	sorted := sortByPublished(items)

	var active, past, videos, shorts []models.ContentItem
	for _, item := range sorted {
		switch {
		case item.IsLive():
			active = append(active, item)
		case item.HasLiveStreamingRecord:
			past = append(past, item)
		}

		if item.IsShort && !item.IsLive() {
			shorts = append(shorts, item)
		}

		isStream := item.LiveState != models.LiveStateNone
		if !isStream && !item.HasLiveStreamingRecord && !item.IsShort {
			videos = append(videos, item)
		}
	}

	return Categories{
		Livestreams: capTo(append(active, past...), MaxLivestreams),
		Videos:      capTo(videos, MaxVideos),
		Shorts:      capTo(shorts, MaxShorts),
	}
}

// Featured returns the n most viewed items that are not shorts.
func Featured(items []models.ContentItem, n int) []models.ContentItem {
	if n <= 0 {
		n = DefaultFeatured
	}

	candidates := make([]models.ContentItem, 0, len(items))
	for _, item := range sortByPublished(items) {
		if !item.IsShort {
			candidates = append(candidates, item)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ViewCount > candidates[j].ViewCount
	})

	return capTo(candidates, n)
}

// sortByPublished copies items and orders them newest first. Equal timestamps
// fall back to the id so the result does not depend on input order.
func sortByPublished(items []models.ContentItem) []models.ContentItem {
	sorted := slices.Clone(items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})
	return sorted
}

func capTo(items []models.ContentItem, n int) []models.ContentItem {
	if items == nil {
		return []models.ContentItem{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
