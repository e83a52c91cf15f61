package repository

import (
	"context"
	"sort"
	"sync"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
)

// MemoryStore keeps serialised buckets in process memory. Documents are stored
// encoded so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	buckets   map[models.BucketKey][]byte
	snapshots map[models.BucketKey][]byte
}

var _ drepo.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:   make(map[models.BucketKey][]byte),
		snapshots: make(map[models.BucketKey][]byte),
	}
}

func (s *MemoryStore) Load(_ context.Context, key models.BucketKey) (*models.Bucket, error) {
	s.mu.RLock()
	data, ok := s.buckets[key]
	s.mu.RUnlock()
	if !ok {
		return nil, drepo.ErrBucketNotFound
	}
	return decodeBucket(key, data)
}

func (s *MemoryStore) Save(_ context.Context, key models.BucketKey, b *models.Bucket) error {
	data, err := encodeBucket(b)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.buckets[key] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, exchange string) ([]models.BucketKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BucketKey
	for k := range s.buckets {
		if exchange == "" || k.Exchange == exchange {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	s.mu.RLock()
	data, ok := s.snapshots[key]
	s.mu.RUnlock()
	if !ok {
		return nil, drepo.ErrSnapshotNotFound
	}
	return decodeSnapshot(key, data)
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, key models.BucketKey, snap *models.StatSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshots[key] = data
	s.mu.Unlock()
	return nil
}

// PutRaw stores an arbitrary bucket document, used to exercise corruption handling.
func (s *MemoryStore) PutRaw(key models.BucketKey, data []byte) {
	s.mu.Lock()
	s.buckets[key] = data
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error { return nil }

func sortKeys(keys []models.BucketKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Exchange != keys[j].Exchange {
			return keys[i].Exchange < keys[j].Exchange
		}
		return keys[i].Industry < keys[j].Industry
	})
}
