// Package encoder turns a ratio value and its bucket statistics into the
// display triple consumed by the report renderer.
package encoder

import (
	"math"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/domain/service"
	"FinPeer/internal/services/numeric"
)

const (
	DefaultAlphaScale     = 3.0
	DefaultStdScaleFactor = 0.75

	// negativeIntensity is the fixed intensity of a forced unfavorable encoding.
	negativeIntensity = 0.5
)

// Encoder is stateless once built and safe for concurrent use.
type Encoder struct {
	alphaScale float64
	stdScale   float64
}

var _ service.ValueEncoder = (*Encoder)(nil)

type Option func(*Encoder)

// WithAlphaScale sets the intensity damping divisor. Values <= 0 are ignored.
func WithAlphaScale(a float64) Option {
	return func(e *Encoder) {
		if a > 0 {
			e.alphaScale = a
		}
	}
}

// WithStdScaleFactor sets the neutral band half-width in MADs. Values <= 0 are ignored.
func WithStdScaleFactor(k float64) Option {
	return func(e *Encoder) {
		if k > 0 {
			e.stdScale = k
		}
	}
}

func New(opts ...Option) *Encoder {
	e := &Encoder{alphaScale: DefaultAlphaScale, stdScale: DefaultStdScaleFactor}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode scores value against median and MAD.
//
// A negative value of a red-if-negative ratio is always unfavorable. Without
// a median or MAD the encoding is neutral with zero intensity. A zero MAD
// yields zero intensity when the value sits on the median and full intensity
// otherwise.
func (e *Encoder) Encode(value, median, mad numeric.Opt, style models.Style) models.Encoding {
	v, ok := value.Get()
	if !ok {
		return models.Encoding{DisplayValue: Missing, Direction: models.DirectionNeutral}
	}
	enc := models.Encoding{
		DisplayValue: FormatValue(v, style),
		Value:        value.Ptr(),
		Direction:    models.DirectionNeutral,
	}

	if style.RedIfNegative && v < 0 {
		enc.Direction = models.DirectionUnfavorable
		enc.Intensity = negativeIntensity
		return enc
	}

	m, okM := median.Get()
	d, okD := mad.Get()
	if !okM || !okD {
		return enc
	}

	var z float64
	switch {
	case d != 0:
		z = (v - m) / d
	case v != m:
		z = math.Inf(1)
	}
	enc.Intensity = clamp(math.Abs(z)/2, 0, 1) / e.alphaScale

	band := e.stdScale * d
	above := v > m+band
	below := v < m-band
	switch {
	case above && style.Polarity == models.LargeIsGood, below && style.Polarity != models.LargeIsGood:
		enc.Direction = models.DirectionFavorable
	case above, below:
		enc.Direction = models.DirectionUnfavorable
	}
	return enc
}

// EncodeRatio encodes the named ratio of rec against snapshot s using the
// default style table.
func (e *Encoder) EncodeRatio(rec models.RatioRecord, s *models.StatSnapshot, name models.Ratio) models.Encoding {
	median, mad := numeric.None, numeric.None
	if s != nil {
		median, mad = s.Lookup(name)
	}
	return e.Encode(rec.Get(name), median, mad, StyleFor(name))
}

// EncodeAll encodes every ratio in models.AllRatios. Ratios absent from rec
// are still present in the result as neutral placeholders.
func (e *Encoder) EncodeAll(rec models.RatioRecord, s *models.StatSnapshot) map[models.Ratio]models.Encoding {
	out := make(map[models.Ratio]models.Encoding, len(models.AllRatios))
	for _, name := range models.AllRatios {
		out[name] = e.EncodeRatio(rec, s, name)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
