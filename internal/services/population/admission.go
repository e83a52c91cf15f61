// Package population maintains the per-industry peer populations: it admits
// ratio records, filters fields that cannot be negative and merges them into
// the persisted bucket under a single-writer lock.
package population

import (
	"errors"
	"fmt"
	"math"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/numeric"
)

// DefaultMinMarketCap is the admission threshold in millions.
const DefaultMinMarketCap = 50.0

// ErrRejected marks a record that failed the admission gate. It is a soft
// outcome: the company is left out of its bucket.
var ErrRejected = errors.New("record rejected")

// Rejection reasons.
const (
	ReasonMarketCapMissing = "market_cap_missing"
	ReasonMarketCapSmall   = "market_cap_below_threshold"
)

// RejectError describes why a record was not admitted. It matches ErrRejected.
type RejectError struct {
	Reason    string
	MarketCap float64
	Threshold float64
}

func (e *RejectError) Error() string {
	if e.Reason == ReasonMarketCapMissing {
		return "record rejected: market cap missing"
	}
	return fmt.Sprintf("record rejected: market cap %.2f below %.2f", e.MarketCap, e.Threshold)
}

func (e *RejectError) Is(target error) bool { return target == ErrRejected }

// MergeMode controls how a re-upserted company is combined with its stored entry.
type MergeMode string

const (
	// MergePatch overwrites the fields present in the new record and keeps the rest.
	MergePatch MergeMode = "patch"
	// MergeReplace discards the stored entry entirely.
	MergeReplace MergeMode = "replace"
)

// Admit applies the market-cap gate and drops every field that is non-finite,
// or negative while belonging to models.NonNegativeRatios. The input is not modified.
func Admit(rec models.RatioRecord, minMarketCap float64) (models.RatioRecord, error) {
	mc, ok := rec[models.RatioMarketCap]
	if !ok || math.IsNaN(mc) || math.IsInf(mc, 0) {
		return nil, &RejectError{Reason: ReasonMarketCapMissing, Threshold: minMarketCap}
	}
	if rounded := numeric.Round2(mc); rounded < minMarketCap {
		return nil, &RejectError{Reason: ReasonMarketCapSmall, MarketCap: rounded, Threshold: minMarketCap}
	}

	out := make(models.RatioRecord, len(rec))
	for name, v := range rec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if _, nonNeg := models.NonNegativeRatios[name]; nonNeg && v < 0 {
			continue
		}
		out[name] = v
	}
	return out, nil
}

// Merge folds rec into the bucket entry for code, inserting it when absent.
// It reports whether the bucket changed.
func Merge(b *models.Bucket, code string, rec models.RatioRecord, mode MergeMode) bool {
	i := b.Index(code)
	if i < 0 {
		b.Companies = append(b.Companies, models.CompanyEntry{Code: code, Ratios: rec.Clone()})
		return true
	}

	existing := &b.Companies[i]
	if mode == MergeReplace {
		changed := !equalRecords(existing.Ratios, rec)
		existing.Ratios = rec.Clone()
		return changed
	}

	if existing.Ratios == nil {
		existing.Ratios = make(models.RatioRecord, len(rec))
	}
	changed := false
	for name, v := range rec {
		if old, ok := existing.Ratios[name]; !ok || old != v {
			existing.Ratios[name] = v
			changed = true
		}
	}
	return changed
}

func equalRecords(a, b models.RatioRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
