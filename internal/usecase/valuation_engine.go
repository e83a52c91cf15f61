package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	dservice "FinPeer/internal/domain/service"
	"FinPeer/internal/services/encoder"
	"FinPeer/internal/services/history"
	"FinPeer/internal/services/numeric"
	"FinPeer/pkg/logger"

	"github.com/google/uuid"
)

// ErrCompanyNotFound is returned when a bucket has no entry for a code.
var ErrCompanyNotFound = errors.New("company not found")

// Population is the population store as seen by the engine.
type Population interface {
	dservice.PopulationStore
	Entry(ctx context.Context, key models.BucketKey, code string) (*models.CompanyEntry, bool, error)
}

// ValuationEngine runs one company through ratio derivation, admission,
// snapshot regeneration and encoding.
type ValuationEngine struct {
	calculator dservice.RatioCalculator
	population Population
	aggregator dservice.StatisticsAggregator
	encoder    *encoder.Encoder
	history    *history.Builder
	archive    drepo.RatioArchive
	publisher  drepo.EventPublisher
	metrics    drepo.Metrics
	log        *logger.Logger
	now        func() time.Time
}

type EngineOption func(*ValuationEngine)

// WithArchive appends every admitted ratio record to a history archive.
func WithArchive(a drepo.RatioArchive) EngineOption {
	return func(e *ValuationEngine) { e.archive = a }
}

// WithPublisher announces regenerated snapshots.
func WithPublisher(p drepo.EventPublisher) EngineOption {
	return func(e *ValuationEngine) { e.publisher = p }
}

func WithMetrics(m drepo.Metrics) EngineOption {
	return func(e *ValuationEngine) { e.metrics = m }
}

func WithLogger(l *logger.Logger) EngineOption {
	return func(e *ValuationEngine) { e.log = l }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *ValuationEngine) { e.now = now }
}

func NewValuationEngine(
	calc dservice.RatioCalculator,
	pop Population,
	agg dservice.StatisticsAggregator,
	enc *encoder.Encoder,
	opts ...EngineOption,
) *ValuationEngine {
	e := &ValuationEngine{
		calculator: calc,
		population: pop,
		aggregator: agg,
		encoder:    enc,
		metrics:    noopMetrics{},
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.history = history.NewBuilder(enc, history.WithClock(func() time.Time { return e.now() }))
	return e
}

// Process values one company. The returned valuation encodes the company
// against the bucket snapshot that includes its own contribution when it
// was admitted. Storage failures, corrupt documents included, abort the
// company and are returned unchanged so callers can classify them.
func (e *ValuationEngine) Process(ctx context.Context, code, exchange string, f *models.FundamentalSnapshot, price numeric.Opt) (*models.CompanyValuation, error) {
	start := time.Now()
	defer func() { e.metrics.RecordLatency("process", time.Since(start).Seconds()) }()

	if f == nil {
		return nil, fmt.Errorf("process %s: fundamentals are required", code)
	}
	key := f.BucketKey(exchange)
	if err := key.Validate(); err != nil {
		e.metrics.RecordError("bucket_key")
		return nil, fmt.Errorf("process %s: %w", code, err)
	}
	e.metrics.RecordProcessed(key.Exchange)

	rec := e.calculator.Compute(f, price)

	admitted, err := e.population.Upsert(ctx, key, code, rec)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", code, err)
	}

	var snap *models.StatSnapshot
	if admitted {
		if e.archive != nil {
			if err := e.archive.RecordRatios(ctx, key, code, rec, e.now()); err != nil {
				e.log.Warn("archive ratios failed", logger.String("code", code), logger.Error(err))
			}
		}
		snap, err = e.aggregator.Recompute(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", code, err)
		}
		e.publish(ctx, key, code, snap)
	} else {
		snap, err = e.aggregator.Snapshot(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", code, err)
		}
	}

	v := e.encode(code, key, rec, snap, f)
	v.Admitted = admitted
	e.log.Debug("company valued",
		logger.String("code", code),
		logger.String("bucket", key.String()),
		logger.Bool("admitted", admitted),
		logger.Int("ratios", len(rec)),
	)
	return v, nil
}

// Valuation encodes the stored entry of a company against the current
// snapshot of its bucket without touching the population.
func (e *ValuationEngine) Valuation(ctx context.Context, key models.BucketKey, code string) (*models.CompanyValuation, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	entry, ok, err := e.population.Entry(ctx, key, code)
	if err != nil {
		return nil, fmt.Errorf("read %s in %s: %w", code, key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", code, key, ErrCompanyNotFound)
	}
	snap, err := e.aggregator.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	v := e.encode(code, key, entry.Ratios, snap, nil)
	v.Admitted = true
	return v, nil
}

// Companies lists the stored entries of a bucket.
func (e *ValuationEngine) Companies(ctx context.Context, key models.BucketKey) ([]models.CompanyEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return e.population.ReadAll(ctx, key)
}

// Snapshot returns the bucket snapshot, building it on first use. A bucket
// without companies is reported as not found.
func (e *ValuationEngine) Snapshot(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	entries, err := e.population.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", key, drepo.ErrBucketNotFound)
	}
	return e.aggregator.Snapshot(ctx, key)
}

// Recompute regenerates the bucket snapshot and announces it.
func (e *ValuationEngine) Recompute(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	snap, err := e.aggregator.Recompute(ctx, key)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, key, "", snap)
	return snap, nil
}

// Encode exposes the encoder for ad-hoc values.
func (e *ValuationEngine) Encode(value, median, mad numeric.Opt, style models.Style) models.Encoding {
	enc := e.encoder.Encode(value, median, mad, style)
	e.metrics.RecordEncoding(string(enc.Direction))
	return enc
}

func (e *ValuationEngine) encode(code string, key models.BucketKey, rec models.RatioRecord, snap *models.StatSnapshot, f *models.FundamentalSnapshot) *models.CompanyValuation {
	encs := e.encoder.EncodeAll(rec, snap)
	for _, enc := range encs {
		e.metrics.RecordEncoding(string(enc.Direction))
	}
	return &models.CompanyValuation{
		Code:      code,
		Bucket:    key,
		Ratios:    rec,
		Encodings: encs,
		Snapshot:  snap,
		Extras:    e.encoder.Extras(rec, f),
		History:   e.history.Annual(f),
		Estimates: e.history.Estimates(f),
	}
}

func (e *ValuationEngine) publish(ctx context.Context, key models.BucketKey, code string, snap *models.StatSnapshot) {
	if e.publisher == nil {
		return
	}
	entries, err := e.population.ReadAll(ctx, key)
	if err != nil {
		e.log.Warn("count bucket for event failed", logger.String("bucket", key.String()), logger.Error(err))
	}
	ev := &models.SnapshotUpdated{
		ID:        uuid.NewString(),
		Bucket:    key,
		Code:      code,
		Companies: len(entries),
		Snapshot:  snap,
		At:        e.now().UTC(),
	}
	if err := e.publisher.PublishSnapshotUpdated(ctx, ev); err != nil {
		e.metrics.RecordError("publish_snapshot")
		e.log.Warn("publish snapshot failed", logger.String("bucket", key.String()), logger.Error(err))
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordProcessed(string) {}
func (noopMetrics) RecordAdmitted(string) {}
func (noopMetrics) RecordRejected(string) {}
func (noopMetrics) RecordError(string) {}
func (noopMetrics) RecordLatency(string, float64) {}
func (noopMetrics) RecordEncoding(string) {}
