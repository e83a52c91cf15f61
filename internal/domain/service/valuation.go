package service

import (
	"context"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/numeric"
)

// RatioCalculator derives valuation ratios from fundamentals and a price.
type RatioCalculator interface {
	Compute(f *models.FundamentalSnapshot, price numeric.Opt) models.RatioRecord
}

// PopulationStore owns bucket contents.
type PopulationStore interface {
	Upsert(ctx context.Context, key models.BucketKey, code string, rec models.RatioRecord) (bool, error)
	ReadAll(ctx context.Context, key models.BucketKey) ([]models.CompanyEntry, error)
}

// StatisticsAggregator regenerates and serves bucket snapshots.
type StatisticsAggregator interface {
	Recompute(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error)
	Snapshot(ctx context.Context, key models.BucketKey) (*models.StatSnapshot, error)
}

// ValueEncoder maps a value to its presentation encoding.
type ValueEncoder interface {
	Encode(value, median, mad numeric.Opt, style models.Style) models.Encoding
}
