package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"

	"github.com/timshannon/badgerhold/v4"
)

// badgerDocument is one persisted bucket or snapshot.
type badgerDocument struct {
	ID       string `badgerhold:"key"`
	Kind     string `badgerholdIndex:"Kind"`
	Exchange string `badgerholdIndex:"Exchange"`
	Industry string
	Payload  []byte
}

const (
	kindBucket   = "bucket"
	kindSnapshot = "snapshot"
)

// BadgerStore is an embedded key-value backend. Each Upsert runs in a single
// badger transaction, so a document is replaced atomically.
type BadgerStore struct {
	store *badgerhold.Store
}

var _ drepo.Store = (*BadgerStore)(nil)

func NewBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("badger store: create directory: %w", err)
	}
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{store: store}, nil
}

func docID(kind string, key models.BucketKey) string {
	return kind + "/" + key.Exchange + "/" + key.Industry
}

func (s *BadgerStore) get(kind string, key models.BucketKey) ([]byte, error) {
	var doc badgerDocument
	if err := s.store.Get(docID(kind, key), &doc); err != nil {
		return nil, err
	}
	return doc.Payload, nil
}

func (s *BadgerStore) put(kind string, key models.BucketKey, payload []byte) error {
	id := docID(kind, key)
	return s.store.Upsert(id, badgerDocument{
		ID:       id,
		Kind:     kind,
		Exchange: key.Exchange,
		Industry: key.Industry,
		Payload:  payload,
	})
}

func (s *BadgerStore) Load(_ context.Context, key models.BucketKey) (*models.Bucket, error) {
	data, err := s.get(kindBucket, key)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, drepo.ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get bucket %s: %w", key, err)
	}
	return decodeBucket(key, data)
}

func (s *BadgerStore) Save(_ context.Context, key models.BucketKey, b *models.Bucket) error {
	data, err := encodeBucket(b)
	if err != nil {
		return err
	}
	if err := s.put(kindBucket, key, data); err != nil {
		return fmt.Errorf("badger upsert bucket %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) List(_ context.Context, exchange string) ([]models.BucketKey, error) {
	q := badgerhold.Where("Kind").Eq(kindBucket).Index("Kind")
	if exchange != "" {
		q = q.And("Exchange").Eq(exchange)
	}
	var docs []badgerDocument
	if err := s.store.Find(&docs, q); err != nil {
		return nil, fmt.Errorf("badger list buckets: %w", err)
	}
	out := make([]models.BucketKey, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.BucketKey{Exchange: d.Exchange, Industry: d.Industry})
	}
	sortKeys(out)
	return out, nil
}

func (s *BadgerStore) LoadSnapshot(_ context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	data, err := s.get(kindSnapshot, key)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, drepo.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get snapshot %s: %w", key, err)
	}
	return decodeSnapshot(key, data)
}

func (s *BadgerStore) SaveSnapshot(_ context.Context, key models.BucketKey, snap *models.StatSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.put(kindSnapshot, key, data); err != nil {
		return fmt.Errorf("badger upsert snapshot %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error { return s.store.Close() }
