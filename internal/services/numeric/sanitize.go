package numeric

import (
	"math"

	"github.com/shopspring/decimal"
)

const million = 1_000_000

// SafeDivide returns n/d, or absent when n is absent or d is absent or zero.
func SafeDivide(n, d Opt) Opt {
	if !n.ok || !d.ok || d.v == 0 {
		return None
	}
	return Some(n.v / d.v)
}

// RescaleToMillions converts a raw currency amount to millions. Absent passes through.
func RescaleToMillions(v Opt) Opt {
	if !v.ok {
		return v
	}
	return Some(v.v / million)
}

// ToPercentage converts a fraction to a percentage. Absent passes through.
func ToPercentage(v Opt) Opt {
	if !v.ok {
		return v
	}
	return Some(v.v * 100)
}

// ZeroIfMissing truncates v to an integer, mapping absent to 0.
func ZeroIfMissing(v Opt) int64 {
	if !v.ok {
		return 0
	}
	return int64(v.v)
}

// Round rounds half away from zero to the given number of places.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 { return Round(v, 2) }
