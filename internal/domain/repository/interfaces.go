package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinPeer/internal/domain/models"
)

var (
	// ErrBucketNotFound means the bucket has never been written. Callers create it.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrSnapshotNotFound means no snapshot has been generated for the bucket yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// CorruptError reports a persisted document that cannot be parsed.
type CorruptError struct {
	Key  models.BucketKey
	Kind string // "bucket" or "snapshot"
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s %s is corrupt: %v", e.Kind, e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is or wraps a *CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// BucketRepository persists whole bucket documents. Save must replace the
// stored document atomically: a reader sees either the old or the new bucket.
type BucketRepository interface {
	Load(ctx context.Context, key models.BucketKey) (*models.Bucket, error)
	Save(ctx context.Context, key models.BucketKey, b *models.Bucket) error
	List(ctx context.Context, exchange string) ([]models.BucketKey, error)
}

// SnapshotRepository persists derived statistics, keyed like buckets.
type SnapshotRepository interface {
	LoadSnapshot(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error)
	SaveSnapshot(ctx context.Context, key models.BucketKey, s *models.StatSnapshot) error
}

// Store is a storage backend holding both buckets and snapshots.
type Store interface {
	BucketRepository
	SnapshotRepository
	Close() error
}

// BucketLocker serialises writers of one bucket.
type BucketLocker interface {
	Lock(ctx context.Context, key models.BucketKey) (unlock func(), err error)
}

// RatioArchive keeps an append-only history of admitted ratios and snapshots.
type RatioArchive interface {
	Init(ctx context.Context) error
	RecordRatios(ctx context.Context, key models.BucketKey, code string, rec models.RatioRecord, at time.Time) error
	RecordSnapshot(ctx context.Context, key models.BucketKey, s *models.StatSnapshot, at time.Time) error
	Close() error
}

// EventPublisher announces regenerated snapshots.
type EventPublisher interface {
	PublishSnapshotUpdated(ctx context.Context, ev *models.SnapshotUpdated) error
	Close() error
}

// FundamentalsSource is the data-retrieval boundary.
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, code, exchange string) (*models.FundamentalSnapshot, error)
	Symbols(ctx context.Context, exchange string) ([]models.Symbol, error)
}

// ErrPriceUnavailable is returned by a PriceSource that has no usable price.
var ErrPriceUnavailable = errors.New("price unavailable")

// PriceSource supplies the current market price of a ticker.
type PriceSource interface {
	Price(ctx context.Context, code, exchange string) (float64, error)
}

type Metrics interface {
	RecordProcessed(exchange string)
	RecordAdmitted(exchange string)
	RecordRejected(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordEncoding(direction string)
}
