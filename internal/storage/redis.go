package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore tracks which cases were scraped recently so a run can skip
// refetching detail pages inside the dedup window.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// MarkCaseScraped sets a key with a TTL to suppress refetching.
func (s *RedisStore) MarkCaseScraped(ctx context.Context, caseID string, ttl time.Duration) error {
	key := fmt.Sprintf("scraped:%s", caseID)
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// IsRecentlyScraped checks whether a case was scraped within the TTL.
func (s *RedisStore) IsRecentlyScraped(ctx context.Context, caseID string) (bool, error) {
	key := fmt.Sprintf("scraped:%s", caseID)
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}
