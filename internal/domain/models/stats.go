package models

import "FinPeer/internal/services/numeric"

// StatSnapshot holds the per-ratio robust statistics of one bucket.
type StatSnapshot struct {
	Median map[Ratio]float64 `json:"Median"`
	MAD    map[Ratio]float64 `json:"MAD"`
}

func NewStatSnapshot() *StatSnapshot {
	return &StatSnapshot{Median: map[Ratio]float64{}, MAD: map[Ratio]float64{}}
}

// Lookup returns median and MAD for name; either may be absent.
func (s *StatSnapshot) Lookup(name Ratio) (median, mad numeric.Opt) {
	if s == nil {
		return numeric.None, numeric.None
	}
	if v, ok := s.Median[name]; ok {
		median = numeric.Some(v)
	}
	if v, ok := s.MAD[name]; ok {
		mad = numeric.Some(v)
	}
	return median, mad
}
