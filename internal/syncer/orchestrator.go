// Package syncer keeps the local catalog fresh by running bounded sync passes
// against the upstream platform, at most one at a time across all replicas.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levifans/backend/internal/catalog"
	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/metrics"
	"github.com/levifans/backend/internal/models"
	"github.com/levifans/backend/internal/videos"
)

var (
	// ErrSyncInProgress indicates another caller currently holds the sync lock.
	ErrSyncInProgress = errors.New("sync already in progress")

	errUpstream = errors.New("upstream fetch failed")
)

// Upstream is the subset of the platform client a sync pass needs.
type Upstream interface {
	ListUploads(ctx context.Context, pageToken string, pageSize int) (models.UploadsPage, error)
	VideoDetails(ctx context.Context, ids []string) ([]models.UpstreamVideo, error)
}

// Config bounds how often and how deep the catalog is refreshed.
type Config struct {
	// Interval is the age after which the catalog is considered stale.
	Interval time.Duration
	// LockTTL bounds how long a crashed pass can block others.
	LockTTL time.Duration
	// Horizon limits incremental passes to recently published items.
	Horizon          time.Duration
	PageSize         int
	DeepPages        int
	IncrementalPages int
	IncrementalLimit int
}

// DefaultConfig returns the production sync bounds.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Minute,
		LockTTL:          60 * time.Second,
		Horizon:          60 * 24 * time.Hour,
		PageSize:         50,
		DeepPages:        5,
		IncrementalPages: 1,
		IncrementalLimit: 50,
	}
}

// Orchestrator decides when to sync and runs the passes.
type Orchestrator struct {
	store    catalog.Store
	upstream Upstream
	cfg      Config
	now      func() time.Time
}

// New constructs an orchestrator. Zero fields in cfg take their default values.
func New(store catalog.Store, upstream Upstream, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.DeepPages <= 0 {
		cfg.DeepPages = def.DeepPages
	}
	if cfg.IncrementalPages <= 0 {
		cfg.IncrementalPages = def.IncrementalPages
	}
	if cfg.IncrementalLimit <= 0 {
		cfg.IncrementalLimit = def.IncrementalLimit
	}
	return &Orchestrator{store: store, upstream: upstream, cfg: cfg, now: time.Now}
}

// WithNowFunc allows tests to override the time source.
func (o *Orchestrator) WithNowFunc(now func() time.Time) {
	o.now = now
}

// EnsureSynced runs a sync pass if the catalog is stale and no other caller is
// already syncing. It never blocks on another caller's pass and never reports
// upstream failures; only store failures are returned.
func (o *Orchestrator) EnsureSynced(ctx context.Context) error {
	now := o.now()

	last, synced, err := o.store.LastSync(ctx)
	if err != nil {
		return fmt.Errorf("check last sync: %w", err)
	}
	if synced && now.Sub(last) <= o.cfg.Interval {
		return nil
	}

	err = o.runLocked(ctx, !synced, now)
	if errors.Is(err, ErrSyncInProgress) {
		metrics.RecordLockContention()
		logging.FromContext(ctx).Debug("sync already running elsewhere, serving current catalog")
		return nil
	}
	return err
}

// Resync runs a pass regardless of catalog age. It still honours the lock and
// returns ErrSyncInProgress when another pass is running.
func (o *Orchestrator) Resync(ctx context.Context, deep bool) error {
	return o.runLocked(ctx, deep, o.now())
}

func (o *Orchestrator) runLocked(ctx context.Context, deep bool, started time.Time) error {
	lock, acquired, err := o.store.AcquireLock(ctx, o.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return ErrSyncInProgress
	}

	defer func() {
		// The pass may have outlived its request; release on a fresh context.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := o.store.ReleaseLock(releaseCtx, lock); relErr != nil {
			logging.FromContext(ctx).Warn("release sync lock", "error", relErr)
		}
	}()

	count, passErr := o.pass(ctx, deep)
	switch {
	case passErr == nil:
		metrics.RecordSyncPass(deep, "success", count, float64(started.Unix()))
	case errors.Is(passErr, errUpstream):
		metrics.RecordSyncPass(deep, "upstream_error", count, float64(started.Unix()))
		logging.FromContext(ctx).Warn("sync pass failed upstream, keeping current catalog",
			"deep", deep, "synced", count, "error", passErr)
	default:
		metrics.RecordSyncPass(deep, "store_error", count, 0)
		return fmt.Errorf("sync pass: %w", passErr)
	}

	if err := o.store.SetLastSync(ctx, started); err != nil {
		return fmt.Errorf("record last sync: %w", err)
	}
	return nil
}

// pass pages through the uploads playlist and upserts every decoded item. It
// returns the number of items written.
func (o *Orchestrator) pass(ctx context.Context, deep bool) (count int, err error) {
	name := "sync.incremental"
	maxPages := o.cfg.IncrementalPages
	if deep {
		name = "sync.deep"
		maxPages = o.cfg.DeepPages
	}

	ctx, span := logging.StartSpan(ctx, name)
	defer func() {
		span.Logger().Info("sync pass finished", "deep", deep, "synced", count)
		span.End(err)
	}()

	horizon := o.now().Add(-o.cfg.Horizon)
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		uploads, err := o.upstream.ListUploads(ctx, pageToken, o.cfg.PageSize)
		if err != nil {
			return count, fmt.Errorf("%w: list uploads page %d: %w", errUpstream, page, err)
		}
		if len(uploads.VideoIDs) == 0 {
			break
		}

		details, err := o.upstream.VideoDetails(ctx, uploads.VideoIDs)
		if err != nil {
			return count, fmt.Errorf("%w: video details page %d: %w", errUpstream, page, err)
		}

		for _, raw := range details {
			item := videos.NewContentItem(raw, o.now())
			if !deep && item.PublishedAt.Before(horizon) {
				continue
			}
			if err := o.store.Upsert(ctx, item); err != nil {
				return count, err
			}
			count++
		}

		pageToken = uploads.NextPageToken
		if pageToken == "" || (!deep && count >= o.cfg.IncrementalLimit) {
			break
		}
	}

	return count, nil
}
