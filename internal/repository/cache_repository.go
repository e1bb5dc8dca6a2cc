package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
)

const (
	cacheKeyPrefix = "cache:"
	scanBatch      = 200
)

// CacheRepository keeps JSON read-model snapshots in Redis under the cache:
// namespace, apart from the auth: keys owned by SessionRepository.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs the repository. A nil client always misses.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get decodes the entry at key into dest. Entries that no longer decode into
// dest, typically after a model change, are evicted and reported as a miss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("evicting undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = r.client.Unlink(ctx, cacheKeyPrefix+key).Err()
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value with ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := r.client.Set(ctx, cacheKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete unlinks keys.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = cacheKeyPrefix + key
	}
	if err := r.client.Unlink(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeleteKeyspace removes every entry whose key starts with keyspace+":" and
// reports how many were removed.
func (r *CacheRepository) DeleteKeyspace(ctx context.Context, keyspace string) (int, error) {
	if r.client == nil {
		return 0, nil
	}
	iter := r.client.Scan(ctx, 0, cacheKeyPrefix+keyspace+":*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	removed := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.Unlink(ctx, batch...).Err(); err != nil {
			return err
		}
		removed += len(batch)
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("cache flush %s: %w", keyspace, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache scan %s: %w", keyspace, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("cache flush %s: %w", keyspace, err)
	}
	return removed, nil
}
