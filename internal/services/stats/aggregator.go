package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	dservice "FinPeer/internal/domain/service"
	"FinPeer/pkg/logger"
)

// Aggregator regenerates bucket snapshots from the population store.
type Aggregator struct {
	population dservice.PopulationStore
	snapshots  drepo.SnapshotRepository
	locker     drepo.BucketLocker
	archive    drepo.RatioArchive
	metrics    drepo.Metrics
	log        *logger.Logger
	precision  int32
	now        func() time.Time
}

var _ dservice.StatisticsAggregator = (*Aggregator)(nil)

type Option func(*Aggregator)

// WithPrecision sets the number of decimals kept in persisted snapshots; -1 keeps all.
func WithPrecision(p int32) Option { return func(a *Aggregator) { a.precision = p } }

// WithArchive appends every regenerated snapshot to a history archive.
func WithArchive(ar drepo.RatioArchive) Option { return func(a *Aggregator) { a.archive = ar } }

// WithLocker sets the lock held while a bucket is read and its snapshot saved.
// It must be the locker the population store writes under.
func WithLocker(l drepo.BucketLocker) Option { return func(a *Aggregator) { a.locker = l } }

func WithMetrics(m drepo.Metrics) Option { return func(a *Aggregator) { a.metrics = m } }

func WithLogger(l *logger.Logger) Option { return func(a *Aggregator) { a.log = l } }

func NewAggregator(pop dservice.PopulationStore, snaps drepo.SnapshotRepository, opts ...Option) *Aggregator {
	a := &Aggregator{
		population: pop,
		snapshots:  snaps,
		log:        logger.Nop(),
		precision:  2,
		now:        time.Now,
	}
	if lp, ok := pop.(interface{ Locker() drepo.BucketLocker }); ok {
		a.locker = lp.Locker()
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Recompute reads the whole bucket, rebuilds the snapshot from scratch and
// persists it. A bucket that does not exist yet yields an empty snapshot.
// The bucket lock is held from the read to the save, so a snapshot computed
// from an older population can never overwrite a newer one.
func (a *Aggregator) Recompute(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	start := time.Now()
	if a.locker != nil {
		unlock, err := a.locker.Lock(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("lock bucket %s: %w", key, err)
		}
		defer unlock()
	}

	entries, err := a.population.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read bucket %s: %w", key, err)
	}

	snap := Summarise(entries, models.AllRatios, a.precision)
	if err := a.snapshots.SaveSnapshot(ctx, key, snap); err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("snapshot_save")
		}
		return nil, fmt.Errorf("save snapshot %s: %w", key, err)
	}

	if a.archive != nil {
		if err := a.archive.RecordSnapshot(ctx, key, snap, a.now()); err != nil {
			a.log.Warn("archive snapshot failed", logger.String("bucket", key.String()), logger.Error(err))
		}
	}
	if a.metrics != nil {
		a.metrics.RecordLatency("recompute", time.Since(start).Seconds())
	}
	a.log.Debug("snapshot recomputed",
		logger.String("bucket", key.String()),
		logger.Int("companies", len(entries)),
		logger.Int("ratios", len(snap.Median)),
	)
	return snap, nil
}

// Snapshot returns the persisted snapshot, regenerating it when none exists.
func (a *Aggregator) Snapshot(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	snap, err := a.snapshots.LoadSnapshot(ctx, key)
	if errors.Is(err, drepo.ErrSnapshotNotFound) {
		return a.Recompute(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return snap, nil
}
