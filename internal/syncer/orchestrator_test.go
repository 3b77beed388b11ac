package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/levifans/backend/internal/catalog"
	"github.com/levifans/backend/internal/models"
)

var now = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

// fakeUpstream serves pages of ids "p<page>-<n>"; each id is published the given
// number of days ago.
type fakeUpstream struct {
	pages      int
	perPage    int
	ageDays    func(page, n int) int
	listErr    error
	detailsErr error

	listCalls    atomic.Int32
	detailsCalls atomic.Int32

	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (f *fakeUpstream) ListUploads(ctx context.Context, pageToken string, pageSize int) (models.UploadsPage, error) {
	f.listCalls.Add(1)
	if f.block != nil {
		f.once.Do(func() { close(f.started) })
		<-f.block
	}
	if f.listErr != nil {
		return models.UploadsPage{}, f.listErr
	}

	page := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &page)
	}
	if page >= f.pages {
		return models.UploadsPage{}, nil
	}

	out := models.UploadsPage{}
	for n := 0; n < f.perPage; n++ {
		out.VideoIDs = append(out.VideoIDs, fmt.Sprintf("p%d-%d", page, n))
	}
	if page+1 < f.pages {
		out.NextPageToken = fmt.Sprintf("page-%d", page+1)
	}
	return out, nil
}

func (f *fakeUpstream) VideoDetails(ctx context.Context, ids []string) ([]models.UpstreamVideo, error) {
	f.detailsCalls.Add(1)
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}

	out := make([]models.UpstreamVideo, 0, len(ids))
	for _, id := range ids {
		var page, n int
		fmt.Sscanf(id, "p%d-%d", &page, &n)
		age := 1
		if f.ageDays != nil {
			age = f.ageDays(page, n)
		}
		out = append(out, models.UpstreamVideo{
			ID:                   id,
			Title:                "video " + id,
			PublishedAt:          now.AddDate(0, 0, -age).Format(time.RFC3339),
			Duration:             "PT5M",
			LiveBroadcastContent: "none",
			ViewCount:            "10",
		})
	}
	return out, nil
}

type failingStore struct {
	*catalog.MemoryStore
	upsertErr   error
	lastSyncErr error
}

func (s *failingStore) Upsert(ctx context.Context, item models.ContentItem) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.MemoryStore.Upsert(ctx, item)
}

func (s *failingStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	if s.lastSyncErr != nil {
		return time.Time{}, false, s.lastSyncErr
	}
	return s.MemoryStore.LastSync(ctx)
}

func newOrchestrator(store catalog.Store, up Upstream) *Orchestrator {
	o := New(store, up, Config{})
	o.WithNowFunc(func() time.Time { return now })
	return o
}

func catalogSize(t *testing.T, store catalog.Store) int {
	t.Helper()
	items, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	return len(items)
}

func assertLockFree(t *testing.T, store catalog.Store) {
	t.Helper()
	lock, ok, err := store.AcquireLock(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("expected sync lock to be released ok=%v err=%v", ok, err)
	}
	_ = store.ReleaseLock(context.Background(), lock)
}

func TestFirstSyncIsDeep(t *testing.T) {
	store := catalog.NewMemoryStore()
	up := &fakeUpstream{pages: 8, perPage: 50, ageDays: func(int, int) int { return 365 }}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err != nil {
		t.Fatalf("ensure synced: %v", err)
	}

	if got := up.listCalls.Load(); got != 5 {
		t.Fatalf("expected 5 pages on deep sync got %d", got)
	}
	if got := catalogSize(t, store); got != 250 {
		t.Fatalf("expected 250 items including old ones got %d", got)
	}

	last, ok, _ := store.LastSync(context.Background())
	if !ok || !last.Equal(now) {
		t.Fatalf("expected last sync %v got %v (ok=%v)", now, last, ok)
	}
	assertLockFree(t, store)
}

func TestDeepSyncStopsWithoutNextPage(t *testing.T) {
	store := catalog.NewMemoryStore()
	up := &fakeUpstream{pages: 2, perPage: 10}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err != nil {
		t.Fatalf("ensure synced: %v", err)
	}
	if got := up.listCalls.Load(); got != 2 {
		t.Fatalf("expected 2 list calls got %d", got)
	}
	if got := catalogSize(t, store); got != 20 {
		t.Fatalf("expected 20 items got %d", got)
	}
}

func TestIncrementalSyncSkipsOldItems(t *testing.T) {
	store := catalog.NewMemoryStore()
	_ = store.SetLastSync(context.Background(), now.Add(-11*time.Minute))

	up := &fakeUpstream{pages: 5, perPage: 50, ageDays: func(_, n int) int {
		if n < 20 {
			return 3
		}
		return 90
	}}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err != nil {
		t.Fatalf("ensure synced: %v", err)
	}

	if got := up.listCalls.Load(); got != 1 {
		t.Fatalf("expected a single page on incremental sync got %d", got)
	}
	if got := catalogSize(t, store); got != 20 {
		t.Fatalf("expected only the 20 recent items got %d", got)
	}
}

func TestEnsureSyncedIsIdempotentWithinInterval(t *testing.T) {
	store := catalog.NewMemoryStore()
	up := &fakeUpstream{pages: 1, perPage: 5}
	o := newOrchestrator(store, up)

	for i := 0; i < 2; i++ {
		if err := o.EnsureSynced(context.Background()); err != nil {
			t.Fatalf("ensure synced: %v", err)
		}
	}
	if got := up.listCalls.Load(); got != 1 {
		t.Fatalf("expected one pass got %d list calls", got)
	}

	o.WithNowFunc(func() time.Time { return now.Add(599 * time.Second) })
	_ = o.EnsureSynced(context.Background())
	if got := up.listCalls.Load(); got != 1 {
		t.Fatalf("expected catalog to still be fresh, got %d list calls", got)
	}

	o.WithNowFunc(func() time.Time { return now.Add(601 * time.Second) })
	_ = o.EnsureSynced(context.Background())
	if got := up.listCalls.Load(); got != 2 {
		t.Fatalf("expected a second pass once stale, got %d list calls", got)
	}
}

func TestConcurrentCallersRunOnePass(t *testing.T) {
	store := catalog.NewMemoryStore()
	up := &fakeUpstream{
		pages:   1,
		perPage: 3,
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	o := newOrchestrator(store, up)

	const callers = 12
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { results <- o.EnsureSynced(context.Background()) }()
	}

	<-up.started
	// Every caller except the lock holder returns while the pass is blocked.
	for i := 0; i < callers-1; i++ {
		if err := <-results; err != nil {
			t.Fatalf("ensure synced: %v", err)
		}
	}
	close(up.block)
	if err := <-results; err != nil {
		t.Fatalf("ensure synced: %v", err)
	}

	if got := up.listCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one pass got %d list calls", got)
	}
	assertLockFree(t, store)
}

func TestUpstreamFailureIsSwallowed(t *testing.T) {
	store := catalog.NewMemoryStore()
	_ = store.Upsert(context.Background(), models.ContentItem{ID: "existing"})
	up := &fakeUpstream{pages: 1, perPage: 5, detailsErr: errors.New("quota exceeded")}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err != nil {
		t.Fatalf("expected upstream error to be swallowed got %v", err)
	}

	if got := catalogSize(t, store); got != 1 {
		t.Fatalf("expected existing catalog untouched got %d items", got)
	}
	if _, ok, _ := store.LastSync(context.Background()); !ok {
		t.Fatal("expected last sync to be recorded after a failed pass")
	}
	assertLockFree(t, store)
}

func TestStoreFailureSurfaces(t *testing.T) {
	store := &failingStore{MemoryStore: catalog.NewMemoryStore(), upsertErr: errors.New("disk full")}
	up := &fakeUpstream{pages: 1, perPage: 5}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err == nil {
		t.Fatal("expected store error")
	}
	if _, ok, _ := store.LastSync(context.Background()); ok {
		t.Fatal("expected last sync to stay unset after store failure")
	}
	assertLockFree(t, store)
}

func TestLastSyncReadFailureSurfaces(t *testing.T) {
	store := &failingStore{MemoryStore: catalog.NewMemoryStore(), lastSyncErr: errors.New("connection refused")}
	up := &fakeUpstream{pages: 1, perPage: 5}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err == nil {
		t.Fatal("expected store error")
	}
	if got := up.listCalls.Load(); got != 0 {
		t.Fatalf("expected no upstream calls got %d", got)
	}
}

func TestMarkStaleTriggersIncrementalPass(t *testing.T) {
	store := catalog.NewMemoryStore()
	_ = store.SetLastSync(context.Background(), now)
	_ = store.MarkStale(context.Background())
	up := &fakeUpstream{pages: 5, perPage: 50}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err != nil {
		t.Fatalf("ensure synced: %v", err)
	}
	if got := up.listCalls.Load(); got != 1 {
		t.Fatalf("expected incremental pass after invalidation got %d list calls", got)
	}
}

func TestResync(t *testing.T) {
	store := catalog.NewMemoryStore()
	_ = store.SetLastSync(context.Background(), now)
	up := &fakeUpstream{pages: 3, perPage: 2, ageDays: func(int, int) int { return 400 }}
	o := newOrchestrator(store, up)

	if err := o.Resync(context.Background(), true); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if got := catalogSize(t, store); got != 6 {
		t.Fatalf("expected deep resync to backfill old items got %d", got)
	}

	lock, ok, _ := store.AcquireLock(context.Background(), time.Minute)
	if !ok {
		t.Fatal("expected to acquire lock")
	}
	defer store.ReleaseLock(context.Background(), lock)

	if err := o.Resync(context.Background(), false); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected sync in progress got %v", err)
	}
}

func TestEnsureSyncedReturnsWhenLockHeld(t *testing.T) {
	store := catalog.NewMemoryStore()
	if _, ok, _ := store.AcquireLock(context.Background(), time.Minute); !ok {
		t.Fatal("expected to acquire lock")
	}
	up := &fakeUpstream{pages: 1, perPage: 1}

	if err := newOrchestrator(store, up).EnsureSynced(context.Background()); err != nil {
		t.Fatalf("expected lock contention to be silent got %v", err)
	}
	if got := up.listCalls.Load(); got != 0 {
		t.Fatalf("expected no upstream calls got %d", got)
	}
}
