package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/levifans/backend/internal/models"
)

type memoryLock struct {
	token   string
	expires time.Time
}

// MemoryStore keeps the catalog in process memory. It is used for local runs
// and tests; state does not survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]models.ContentItem
	lastSync *time.Time
	lock     *memoryLock
	now      func() time.Time
}

// NewMemoryStore constructs an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]models.ContentItem),
		now:   time.Now,
	}
}

// WithNowFunc allows tests to override the time source used for lock expiry.
func (s *MemoryStore) WithNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Upsert(_ context.Context, item models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

func (s *MemoryStore) All(_ context.Context) ([]models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ContentItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) LastSync(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSync == nil {
		return time.Time{}, false, nil
	}
	return *s.lastSync, true, nil
}

func (s *MemoryStore) SetLastSync(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = &t
	return nil
}

func (s *MemoryStore) MarkStale(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := time.UnixMilli(0).UTC()
	s.lastSync = &stale
	return nil
}

func (s *MemoryStore) AcquireLock(_ context.Context, ttl time.Duration) (Lock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.lock != nil && now.Before(s.lock.expires) {
		return Lock{}, false, nil
	}

	token := uuid.NewString()
	s.lock = &memoryLock{token: token, expires: now.Add(ttl)}
	return Lock{Token: token}, true, nil
}

func (s *MemoryStore) ReleaseLock(_ context.Context, lock Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil || s.lock.token != lock.Token {
		return ErrLockNotHeld
	}
	s.lock = nil
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
