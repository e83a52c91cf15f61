package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/pkg/cache"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each bucket and snapshot as one JSON string. A single SET
// replaces the whole document, which gives the all-or-nothing write.
type RedisStore struct {
	rc *cache.RedisCache
}

var _ drepo.Store = (*RedisStore)(nil)

func NewRedisStore(rc *cache.RedisCache) *RedisStore {
	return &RedisStore{rc: rc}
}

func bucketKey(key models.BucketKey) string {
	return cache.GenerateKeyWithParams("bucket", key.Exchange, key.Industry)
}

func snapshotKey(key models.BucketKey) string {
	return cache.GenerateKeyWithParams("snapshot", key.Exchange, key.Industry)
}

func (s *RedisStore) get(ctx context.Context, k string) ([]byte, error) {
	data, err := s.rc.Client().Get(ctx, s.rc.Key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrCacheMiss
	}
	return data, err
}

func (s *RedisStore) Load(ctx context.Context, key models.BucketKey) (*models.Bucket, error) {
	data, err := s.get(ctx, bucketKey(key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, drepo.ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get bucket %s: %w", key, err)
	}
	return decodeBucket(key, data)
}

func (s *RedisStore) Save(ctx context.Context, key models.BucketKey, b *models.Bucket) error {
	data, err := encodeBucket(b)
	if err != nil {
		return err
	}
	if err := s.rc.Client().Set(ctx, s.rc.Key(bucketKey(key)), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set bucket %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, exchange string) ([]models.BucketKey, error) {
	pattern := s.rc.Key("bucket:*")
	if exchange != "" {
		pattern = s.rc.Key(cache.GenerateKeyWithParams("bucket", exchange, "*"))
	}
	prefix := s.rc.Key("bucket:")

	var out []models.BucketKey
	iter := s.rc.Client().Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), prefix)
		ex, ind, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		out = append(out, models.BucketKey{Exchange: ex, Industry: ind})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan buckets: %w", err)
	}
	sortKeys(out)
	return out, nil
}

func (s *RedisStore) LoadSnapshot(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	data, err := s.get(ctx, snapshotKey(key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, drepo.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot %s: %w", key, err)
	}
	return decodeSnapshot(key, data)
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, key models.BucketKey, snap *models.StatSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.rc.Client().Set(ctx, s.rc.Key(snapshotKey(key)), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
