// Package repositories holds the PostgreSQL-backed catalog store.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	crdbpgxv5 "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/levifans/backend/internal/catalog"
	"github.com/levifans/backend/internal/db"
	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/models"
)

const (
	lastSyncName = "last_sync"
	syncLockName = "sync_lock"
)

// PostgresCatalogStore keeps the catalog in the catalog_items table and the
// sync bookkeeping in sync_state.
type PostgresCatalogStore struct {
	pool db.Pool
}

// NewPostgresCatalogStore constructs a catalog store backed by PostgreSQL.
func NewPostgresCatalogStore(pool db.Pool) *PostgresCatalogStore {
	return &PostgresCatalogStore{pool: pool}
}

// Upsert inserts or replaces the record for item.ID.
func (s *PostgresCatalogStore) Upsert(ctx context.Context, item models.ContentItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
        INSERT INTO catalog_items (id, payload, published_at, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
        SET payload = excluded.payload,
            published_at = excluded.published_at,
            updated_at = excluded.updated_at
    `, item.ID, payload, item.PublishedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		return wrap("upsert item "+item.ID, err)
	}
	return nil
}

// All returns every catalog item, newest first. Undecodable rows are skipped.
func (s *PostgresCatalogStore) All(ctx context.Context) ([]models.ContentItem, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, payload
        FROM catalog_items
        ORDER BY published_at DESC, id
    `)
	if err != nil {
		return nil, wrap("query catalog", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}

		var item models.ContentItem
		if err := json.Unmarshal(payload, &item); err != nil {
			logging.FromContext(ctx).Warn("skipping malformed catalog record", "id", id, "error", err)
			continue
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return items, nil
}

func (s *PostgresCatalogStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM sync_state WHERE name = $1`, lastSyncName).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, wrap("read last sync", err)
	}

	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last sync %q: %w", value, err)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

func (s *PostgresCatalogStore) SetLastSync(ctx context.Context, t time.Time) error {
	return s.putState(ctx, lastSyncName, strconv.FormatInt(t.UnixMilli(), 10))
}

// MarkStale resets the last sync to the epoch so the next check runs an
// incremental pass.
func (s *PostgresCatalogStore) MarkStale(ctx context.Context) error {
	return s.putState(ctx, lastSyncName, "0")
}

func (s *PostgresCatalogStore) putState(ctx context.Context, name, value string) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO sync_state (name, value, expires_at)
        VALUES ($1, $2, NULL)
        ON CONFLICT (name) DO UPDATE SET value = excluded.value
    `, name, value)
	if err != nil {
		return wrap("write "+name, err)
	}
	return nil
}

// AcquireLock takes the sync lock when it is free or expired. Expiry is judged
// by the database clock so replicas agree on it.
func (s *PostgresCatalogStore) AcquireLock(ctx context.Context, ttl time.Duration) (catalog.Lock, bool, error) {
	token := uuid.NewString()
	acquired := false

	err := crdbpgxv5.ExecuteTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            DELETE FROM sync_state
            WHERE name = $1 AND expires_at IS NOT NULL AND expires_at <= now()
        `, syncLockName); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
            INSERT INTO sync_state (name, value, expires_at)
            VALUES ($1, $2, now() + $3::FLOAT8 * INTERVAL '1 millisecond')
            ON CONFLICT (name) DO NOTHING
        `, syncLockName, token, ttl.Milliseconds())
		if err != nil {
			return err
		}
		acquired = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return catalog.Lock{}, false, wrap("acquire sync lock", err)
	}
	if !acquired {
		return catalog.Lock{}, false, nil
	}
	return catalog.Lock{Token: token}, true, nil
}

func (s *PostgresCatalogStore) ReleaseLock(ctx context.Context, lock catalog.Lock) error {
	tag, err := s.pool.Exec(ctx, `
        DELETE FROM sync_state WHERE name = $1 AND value = $2
    `, syncLockName, lock.Token)
	if err != nil {
		return wrap("release sync lock", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrLockNotHeld
	}
	return nil
}

func (s *PostgresCatalogStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ catalog.Store = (*PostgresCatalogStore)(nil)
