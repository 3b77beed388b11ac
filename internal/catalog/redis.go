package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/levifans/backend/internal/logging"
	"github.com/levifans/backend/internal/models"
)

const (
	videoDBKey  = "yt_video_db_v1"
	lastSyncKey = "yt_last_sync_v1"
	syncLockKey = "yt_sync_lock"
)

// releaseScript deletes the lock only if it still carries the caller's token, so
// a holder whose lock expired cannot free a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps the catalog in a single Redis hash keyed by video id.
type RedisStore struct {
	client redis.UniversalClient
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient opens a client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisStore constructs a catalog store on top of an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Upsert(ctx context.Context, item models.ContentItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	if err := s.client.HSet(ctx, videoDBKey, item.ID, data).Err(); err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]models.ContentItem, error) {
	raw, err := s.client.HGetAll(ctx, videoDBKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	items := make([]models.ContentItem, 0, len(raw))
	for id, value := range raw {
		var item models.ContentItem
		if err := json.Unmarshal([]byte(value), &item); err != nil {
			logging.FromContext(ctx).Warn("skipping malformed catalog record", "id", id, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *RedisStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	millis, err := s.client.Get(ctx, lastSyncKey).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last sync: %w", err)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

func (s *RedisStore) SetLastSync(ctx context.Context, t time.Time) error {
	if err := s.client.Set(ctx, lastSyncKey, t.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("write last sync: %w", err)
	}
	return nil
}

func (s *RedisStore) MarkStale(ctx context.Context) error {
	if err := s.client.Set(ctx, lastSyncKey, 0, 0).Err(); err != nil {
		return fmt.Errorf("mark catalog stale: %w", err)
	}
	return nil
}

func (s *RedisStore) AcquireLock(ctx context.Context, ttl time.Duration) (Lock, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, syncLockKey, token, ttl).Result()
	if err != nil {
		return Lock{}, false, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return Lock{}, false, nil
	}
	return Lock{Token: token}, true, nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, lock Lock) error {
	deleted, err := releaseScript.Run(ctx, s.client, []string{syncLockKey}, lock.Token).Int64()
	if err != nil {
		return fmt.Errorf("release sync lock: %w", err)
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
