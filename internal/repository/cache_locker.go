package repository

import (
	"context"
	"fmt"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/pkg/cache"
	"FinPeer/pkg/logger"
)

// CacheLocker is a BucketLocker backed by cache.Service advisory locks, which
// makes the single-writer rule hold across processes when the cache is Redis.
type CacheLocker struct {
	cache cache.Service
	ttl   time.Duration
	retry time.Duration
	log   *logger.Logger
}

var _ drepo.BucketLocker = (*CacheLocker)(nil)

func NewCacheLocker(c cache.Service, ttl, retry time.Duration, log *logger.Logger) *CacheLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CacheLocker{cache: c, ttl: ttl, retry: retry, log: log}
}

func lockKey(key models.BucketKey) string {
	return cache.GenerateKeyWithParams("lock", key.Exchange, key.Industry)
}

func (l *CacheLocker) Lock(ctx context.Context, key models.BucketKey) (func(), error) {
	k := lockKey(key)
	for {
		token, ok, err := l.cache.TryLock(ctx, k, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("try lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// release with a fresh context: the caller's may already be done
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := l.cache.Unlock(ctx, k, token); err != nil {
					l.log.Warn("bucket unlock failed", logger.String("bucket", key.String()), logger.Error(err))
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
