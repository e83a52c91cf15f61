package population

import (
	"errors"
	"math"
	"testing"

	"FinPeer/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitMarketCapGate(t *testing.T) {
	tests := []struct {
		name   string
		rec    models.RatioRecord
		ok     bool
		reason string
	}{
		{"below threshold", models.RatioRecord{models.RatioMarketCap: 40}, false, ReasonMarketCapSmall},
		{"above threshold", models.RatioRecord{models.RatioMarketCap: 60}, true, ""},
		{"at threshold", models.RatioRecord{models.RatioMarketCap: 50}, true, ""},
		{"rounds up to threshold", models.RatioRecord{models.RatioMarketCap: 49.996}, true, ""},
		{"missing", models.RatioRecord{models.RatioPriceBook: 1}, false, ReasonMarketCapMissing},
		{"nan", models.RatioRecord{models.RatioMarketCap: math.NaN()}, false, ReasonMarketCapMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Admit(tt.rec, DefaultMinMarketCap)
			if tt.ok {
				require.NoError(t, err)
				assert.NotNil(t, out)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))
			assert.Equal(t, tt.reason, rejectReason(err))
		})
	}
}

func TestAdmitDropsNegativeFields(t *testing.T) {
	rec := models.RatioRecord{
		models.RatioMarketCap:   100,
		models.RatioPriceBook:   -3,
		models.RatioTrailingPE:  12,
		models.RatioInterestCov: -1.5,
		models.RatioPriceNetNet: -4,
		models.RatioEVEBITDA:    math.Inf(1),
	}
	out, err := Admit(rec, DefaultMinMarketCap)
	require.NoError(t, err)

	assert.NotContains(t, out, models.RatioPriceBook)
	assert.NotContains(t, out, models.RatioEVEBITDA)
	assert.Equal(t, 12.0, out[models.RatioTrailingPE])
	// coverage and net-net keep their sign
	assert.Equal(t, -1.5, out[models.RatioInterestCov])
	assert.Equal(t, -4.0, out[models.RatioPriceNetNet])
	// input untouched
	assert.Equal(t, -3.0, rec[models.RatioPriceBook])
}

func TestMergeModes(t *testing.T) {
	base := func() *models.Bucket {
		return &models.Bucket{Companies: []models.CompanyEntry{{
			Code:   "AAA",
			Ratios: models.RatioRecord{models.RatioMarketCap: 100, models.RatioPriceBook: 2},
		}}}
	}
	update := models.RatioRecord{models.RatioMarketCap: 120}

	b := base()
	assert.True(t, Merge(b, "AAA", update, MergePatch))
	assert.Equal(t, models.RatioRecord{models.RatioMarketCap: 120, models.RatioPriceBook: 2}, b.Companies[0].Ratios)
	assert.False(t, Merge(b, "AAA", update, MergePatch))

	b = base()
	assert.True(t, Merge(b, "AAA", update, MergeReplace))
	assert.Equal(t, models.RatioRecord{models.RatioMarketCap: 120}, b.Companies[0].Ratios)
	assert.False(t, Merge(b, "AAA", update, MergeReplace))

	assert.True(t, Merge(b, "BBB", update, MergePatch))
	assert.Equal(t, []string{"AAA", "BBB"}, b.Codes())
}
