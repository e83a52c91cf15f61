// Package stats computes robust peer statistics (median and median absolute
// deviation) over an industry bucket.
package stats

import (
	"math"
	"sort"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/numeric"
)

// Median returns the median of values, or NaN for an empty slice.
// The input is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	s := make([]float64, n)
	copy(s, values)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// MAD returns median(|x - median|).
func MAD(values []float64, median float64) float64 {
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - median)
	}
	return Median(dev)
}

// Mean returns the arithmetic mean of values, or NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around mean.
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Collect gathers the finite values of one ratio across a population.
func Collect(entries []models.CompanyEntry, name models.Ratio) []float64 {
	out := make([]float64, 0, len(entries))
	for _, e := range entries {
		v, ok := e.Ratios[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Summarise builds a snapshot for every ratio with at least one value.
// precision < 0 keeps full precision.
func Summarise(entries []models.CompanyEntry, names []models.Ratio, precision int32) *models.StatSnapshot {
	snap := models.NewStatSnapshot()
	for _, name := range names {
		values := Collect(entries, name)
		if len(values) == 0 {
			continue
		}
		med := Median(values)
		mad := MAD(values, med)
		if precision >= 0 {
			med = numeric.Round(med, precision)
			mad = numeric.Round(mad, precision)
		}
		snap.Median[name] = med
		snap.MAD[name] = mad
	}
	return snap
}
