package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	touched  time.Time
}

// MemoryCache is an in-process Service with TTL and least-recently-used eviction.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*memoryItem
	locks      map[string]memoryLock
	maxSize    int
	defaultTTL time.Duration
	seq        atomic.Uint64
	now        func() time.Time
}

type memoryLock struct {
	token    string
	expireAt time.Time
}

var _ Service = (*MemoryCache)(nil)

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{MaxSize: 1000, DefaultTTL: 24 * time.Hour}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryCache{
		items:      make(map[string]*memoryItem),
		locks:      make(map[string]memoryLock),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	if _, exists := mc.items[key]; !exists && len(mc.items) >= mc.maxSize {
		mc.evictLocked(now)
	}
	mc.items[key] = &memoryItem{data: data, expireAt: now.Add(expiration), touched: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	now := mc.now()
	item, ok := mc.items[key]
	if ok && now.After(item.expireAt) {
		delete(mc.items, key)
		ok = false
	}
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item.touched = now
	data := item.data
	mc.mu.Unlock()
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.items, k)
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	if l, held := mc.locks[key]; held && now.Before(l.expireAt) {
		return "", false, nil
	}
	token := strconv.FormatUint(mc.seq.Add(1), 10)
	mc.locks[key] = memoryLock{token: token, expireAt: now.Add(ttl)}
	return token, true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key, token string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	l, held := mc.locks[key]
	if !held || l.token != token {
		return ErrLockNotHeld
	}
	delete(mc.locks, key)
	return nil
}

// Len reports the number of live entries.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

func (mc *MemoryCache) Close() error { return nil }

// evictLocked drops expired entries, then the least recently used one.
func (mc *MemoryCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, it := range mc.items {
		if now.After(it.expireAt) {
			delete(mc.items, k)
			continue
		}
		if oldestKey == "" || it.touched.Before(oldest) {
			oldestKey, oldest = k, it.touched
		}
	}
	if len(mc.items) >= mc.maxSize && oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	case *string:
		*d = string(data)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}
