package encoder

import (
	"testing"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/numeric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var peStyle = StyleFor(models.RatioTrailingPE)

func TestEncodeNeutralWithoutPeers(t *testing.T) {
	enc := New().Encode(numeric.Some(10), numeric.None, numeric.None, peStyle)
	assert.Equal(t, models.DirectionNeutral, enc.Direction)
	assert.Zero(t, enc.Intensity)
	assert.Equal(t, "10.00", enc.DisplayValue)

	enc = New().Encode(numeric.Some(10), numeric.Some(5), numeric.None, peStyle)
	assert.Zero(t, enc.Intensity)
}

func TestEncodeAbsentValue(t *testing.T) {
	enc := New().Encode(numeric.None, numeric.Some(20), numeric.Some(5), peStyle)
	assert.Equal(t, Missing, enc.DisplayValue)
	assert.Nil(t, enc.Value)
	assert.Equal(t, models.DirectionNeutral, enc.Direction)
}

func TestEncodePolarity(t *testing.T) {
	e := New()
	tests := []struct {
		name     string
		value    float64
		polarity models.Polarity
		want     models.Direction
	}{
		{"low pe is good", 15, models.SmallIsGood, models.DirectionFavorable},
		{"high pe is bad", 25, models.SmallIsGood, models.DirectionUnfavorable},
		{"low pe when large is good", 15, models.LargeIsGood, models.DirectionUnfavorable},
		{"high pe when large is good", 25, models.LargeIsGood, models.DirectionFavorable},
		{"inside band", 23, models.SmallIsGood, models.DirectionNeutral},
		{"band edge", 23.75, models.SmallIsGood, models.DirectionNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := models.Style{Polarity: tt.polarity}
			enc := e.Encode(numeric.Some(tt.value), numeric.Some(20), numeric.Some(5), st)
			assert.Equal(t, tt.want, enc.Direction)
		})
	}
}

func TestEncodeIntensity(t *testing.T) {
	e := New()
	// z = 1 -> 0.5 / 3
	enc := e.Encode(numeric.Some(25), numeric.Some(20), numeric.Some(5), peStyle)
	assert.InDelta(t, 0.5/3, enc.Intensity, 1e-12)

	// z = 10 clamps to 1
	enc = e.Encode(numeric.Some(70), numeric.Some(20), numeric.Some(5), peStyle)
	assert.InDelta(t, 1.0/3, enc.Intensity, 1e-12)

	enc = New(WithAlphaScale(4)).Encode(numeric.Some(70), numeric.Some(20), numeric.Some(5), peStyle)
	assert.InDelta(t, 0.25, enc.Intensity, 1e-12)
}

func TestEncodeZeroMAD(t *testing.T) {
	e := New()
	enc := e.Encode(numeric.Some(20), numeric.Some(20), numeric.Some(0), peStyle)
	assert.Zero(t, enc.Intensity)
	assert.Equal(t, models.DirectionNeutral, enc.Direction)

	enc = e.Encode(numeric.Some(21), numeric.Some(20), numeric.Some(0), peStyle)
	assert.InDelta(t, 1.0/3, enc.Intensity, 1e-12)
	assert.Equal(t, models.DirectionUnfavorable, enc.Direction)
}

func TestEncodeRedIfNegative(t *testing.T) {
	e := New()
	enc := e.Encode(numeric.Some(-2), numeric.Some(20), numeric.Some(5), peStyle)
	assert.Equal(t, models.DirectionUnfavorable, enc.Direction)
	assert.Equal(t, negativeIntensity, enc.Intensity)

	// no peers still forces the sign rule
	enc = e.Encode(numeric.Some(-2), numeric.None, numeric.None, StyleFor(models.RatioInterestCov))
	assert.Equal(t, models.DirectionUnfavorable, enc.Direction)

	// price is not judged for sign
	enc = e.Encode(numeric.Some(-2), numeric.None, numeric.None, StyleFor(models.RatioPrice))
	assert.Equal(t, models.DirectionNeutral, enc.Direction)
}

func TestEncodeRatioAgainstSnapshot(t *testing.T) {
	s := models.NewStatSnapshot()
	s.Median[models.RatioTrailingPE] = 20
	s.MAD[models.RatioTrailingPE] = 5
	rec := models.RatioRecord{models.RatioTrailingPE: 15}

	all := New().EncodeAll(rec, s)
	require.Len(t, all, len(models.AllRatios))
	assert.Equal(t, models.DirectionFavorable, all[models.RatioTrailingPE].Direction)
	assert.Equal(t, Missing, all[models.RatioPriceBook].DisplayValue)
	assert.Equal(t, models.DirectionNeutral, New().EncodeRatio(rec, nil, models.RatioTrailingPE).Direction)
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, models.LargeIsGood, StyleFor(models.RatioRevenue).Polarity)
	assert.False(t, StyleFor(models.RatioRevenue).RedIfNegative)
	assert.Equal(t, models.SmallIsGood, StyleFor(models.RatioEVEBITDA).Polarity)
	assert.True(t, StyleFor(models.RatioEVEBITDA).RedIfNegative)
	dy := StyleFor(models.RatioDividendYield)
	assert.True(t, dy.Percent)
	assert.Equal(t, models.LargeIsGood, dy.Polarity)
	assert.Len(t, DefaultStyles(), len(models.AllRatios))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    float64
		st   models.Style
		want string
	}{
		{1234567.891, models.Style{}, "1,234,567.89"},
		{-1234.5, models.Style{}, "-1,234.50"},
		{999.999, models.Style{}, "1,000.00"},
		{0.5, models.Style{}, "0.50"},
		{12.5, models.Style{Percent: true}, "13%"},
		{12.345, models.Style{Percent: true, DontRound: true}, "12.35%"},
		{100, models.Style{}, "100.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.v, tt.st))
	}
}

func TestLeverage(t *testing.T) {
	e := New()
	assert.Equal(t, models.DirectionUnfavorable, e.Leverage(numeric.Some(2)).Direction)
	assert.Equal(t, models.DirectionCaution, e.Leverage(numeric.Some(1.5)).Direction)
	assert.Equal(t, models.DirectionCaution, e.Leverage(numeric.Some(0.81)).Direction)
	assert.Equal(t, models.DirectionFavorable, e.Leverage(numeric.Some(0.8)).Direction)
	assert.Equal(t, models.DirectionNeutral, e.Leverage(numeric.None).Direction)
}

func TestShareStats(t *testing.T) {
	e := New()
	enc := e.ShareStat(PercentInsiders, numeric.Some(12))
	assert.Equal(t, models.DirectionFavorable, enc.Direction)
	assert.Equal(t, "12.00%", enc.DisplayValue)

	enc = e.ShareStat(ShortPercentOutstanding, numeric.Some(5))
	assert.Equal(t, models.DirectionUnfavorable, enc.Direction)

	f := &models.FundamentalSnapshot{}
	f.SharesStats.PercentInstitutions = numeric.Some(50)
	extras := e.Extras(models.RatioRecord{models.RatioDebtEquity: 0.4}, f)
	assert.Equal(t, models.DirectionFavorable, extras[LeverageLight].Direction)
	assert.Equal(t, models.DirectionNeutral, extras[PercentInstitutions].Direction)
	assert.Equal(t, Missing, extras[PercentInsiders].DisplayValue)
}
