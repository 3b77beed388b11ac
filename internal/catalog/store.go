// Package catalog persists the materialized video catalog together with the
// small amount of shared state used to coordinate sync passes.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/levifans/backend/internal/models"
)

var (
	// ErrLockNotHeld indicates a release was attempted with a stale or foreign lock.
	ErrLockNotHeld = errors.New("sync lock not held")
)

// Lock identifies one successful acquisition of the sync lock.
type Lock struct {
	Token string
}

// Store is the durable catalog plus sync bookkeeping. Every mutation is a
// single-key upsert so a pass that fails halfway leaves a valid catalog behind.
type Store interface {
	Upsert(ctx context.Context, item models.ContentItem) error
	All(ctx context.Context) ([]models.ContentItem, error)

	// LastSync returns the last completed sync time; ok is false if the catalog
	// has never been synced.
	LastSync(ctx context.Context) (t time.Time, ok bool, err error)
	SetLastSync(ctx context.Context, t time.Time) error
	// MarkStale forces the next freshness check to run a sync without turning it
	// into a first-time deep pass.
	MarkStale(ctx context.Context) error

	// AcquireLock sets the sync lock only if it is absent. acquired is false when
	// another holder owns an unexpired lock.
	AcquireLock(ctx context.Context, ttl time.Duration) (lock Lock, acquired bool, err error)
	ReleaseLock(ctx context.Context, lock Lock) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
