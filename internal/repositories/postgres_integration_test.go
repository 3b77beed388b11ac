//go:build integration

package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levifans/backend/internal/catalog"
	"github.com/levifans/backend/internal/db"
	"github.com/levifans/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if _, err := db.Migrate(ctx, pool, os.DirFS("../../migrations")); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func resetDatabase(t *testing.T) {
	t.Helper()
	if _, err := testPool.Exec(context.Background(), "TRUNCATE TABLE catalog_items, sync_state"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func testItem(id string, published time.Time) models.ContentItem {
	return models.ContentItem{
		ID:              id,
		Title:           "video " + id,
		PublishedAt:     published,
		Thumbnails:      map[string]string{"high": "https://img.example.com/" + id + ".jpg"},
		DurationSeconds: 615,
		ViewCount:       1200,
		LiveState:       models.LiveStateNone,
		UpdatedAt:       published.Add(time.Hour),
	}
}

func TestPostgresCatalogStore_UpsertAndAll(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	store := NewPostgresCatalogStore(testPool)

	older := testItem("a", time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC))
	newer := testItem("b", time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC))
	for _, item := range []models.ContentItem{older, newer} {
		if err := store.Upsert(ctx, item); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	older.Title = "renamed"
	if err := store.Upsert(ctx, older); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	items, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if diff := cmp.Diff([]models.ContentItem{newer, older}, items); diff != "" {
		t.Fatalf("items (-want +got):\n%s", diff)
	}
}

func TestPostgresCatalogStore_SkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	store := NewPostgresCatalogStore(testPool)

	if _, err := testPool.Exec(ctx, `
        INSERT INTO catalog_items (id, payload, published_at, updated_at)
        VALUES ('bad', '"not an object"', now(), now())
    `); err != nil {
		t.Fatalf("seed malformed row: %v", err)
	}
	if err := store.Upsert(ctx, testItem("good", time.Now().UTC().Truncate(time.Second))); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	items, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(items) != 1 || items[0].ID != "good" {
		t.Fatalf("expected only the good row got %+v", items)
	}
}

func TestPostgresCatalogStore_LastSync(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	store := NewPostgresCatalogStore(testPool)

	if _, ok, err := store.LastSync(ctx); err != nil || ok {
		t.Fatalf("expected never-synced state got ok=%v err=%v", ok, err)
	}

	at := time.Date(2024, time.April, 1, 8, 30, 0, 0, time.UTC)
	if err := store.SetLastSync(ctx, at); err != nil {
		t.Fatalf("set last sync: %v", err)
	}
	got, ok, err := store.LastSync(ctx)
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("expected %v got %v ok=%v err=%v", at, got, ok, err)
	}

	if err := store.MarkStale(ctx); err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	got, ok, err = store.LastSync(ctx)
	if err != nil || !ok || got.Unix() != 0 {
		t.Fatalf("expected epoch after mark stale got %v ok=%v err=%v", got, ok, err)
	}
}

func TestPostgresCatalogStore_Lock(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	store := NewPostgresCatalogStore(testPool)

	lock, ok, err := store.AcquireLock(ctx, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected to acquire lock ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.AcquireLock(ctx, time.Minute); err != nil || ok {
		t.Fatalf("expected held lock to block ok=%v err=%v", ok, err)
	}
	if err := store.ReleaseLock(ctx, catalog.Lock{Token: "someone-else"}); !errors.Is(err, catalog.ErrLockNotHeld) {
		t.Fatalf("expected foreign release to fail got %v", err)
	}
	if err := store.ReleaseLock(ctx, lock); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, err := store.AcquireLock(ctx, time.Minute); err != nil || !ok {
		t.Fatalf("expected lock to be free after release ok=%v err=%v", ok, err)
	}
}

func TestPostgresCatalogStore_ExpiredLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	store := NewPostgresCatalogStore(testPool)

	if _, ok, err := store.AcquireLock(ctx, 10*time.Millisecond); err != nil || !ok {
		t.Fatalf("expected to acquire lock ok=%v err=%v", ok, err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, ok, err := store.AcquireLock(ctx, time.Minute); err != nil || !ok {
		t.Fatalf("expected expired lock to be replaced ok=%v err=%v", ok, err)
	}
}

func TestPostgresCatalogStore_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	store := NewPostgresCatalogStore(testPool)

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.AcquireLock(ctx, time.Minute)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Fatalf("expected exactly one winner got %d", got)
	}
}

func TestPostgresCatalogStore_SchemaMissing(t *testing.T) {
	ctx := context.Background()
	if _, err := testPool.Exec(ctx, "CREATE DATABASE IF NOT EXISTS empty_catalog"); err != nil {
		t.Fatalf("create database: %v", err)
	}

	cfg := testPool.Config()
	cfg.ConnConfig.Database = "empty_catalog"
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if _, err := NewPostgresCatalogStore(pool).All(ctx); !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("expected schema missing got %v", err)
	}
}
