package ratios

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/numeric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{
  "General": {"Code": "ACME", "Type": "Common Stock", "Exchange": "US", "GicSector": "Information Technology", "Sector": "Technology"},
  "Highlights": {"MarketCapitalization": 9990000000, "EPSEstimateNextYear": "2.5", "DividendShare": 1.0, "DividendYield": 0.02},
  "Valuation": {"EnterpriseValue": 12345000000},
  "SharesStats": {"SharesOutstanding": 49000000},
  "Earnings": {"Trend": {
    "2000-12-31": {"date": "2000-12-31", "earningsEstimateGrowth": "5.0"},
    "2099-12-31": {"date": "2099-12-31", "earningsEstimateGrowth": "0.10"},
    "2100-12-31": {"date": "2100-12-31", "earningsEstimateGrowth": 0.20},
    "2101-12-31": {"date": "2101-12-31", "earningsEstimateGrowth": null}
  }},
  "Financials": {
    "Income_Statement": {"yearly": {
      "2023-12-31": {"date": "2023-12-31", "totalRevenue": "1000000000", "netIncome": "100000000", "ebitda": "250000000", "ebit": "200000000", "interestExpense": "20000000", "operatingIncome": "180000000"},
      "2022-12-31": {"date": "2022-12-31", "totalRevenue": "900000000", "netIncome": "1000000"}
    }},
    "Balance_Sheet": {"yearly": {
      "2023-12-31": {"commonStockSharesOutstanding": "50000000", "cash": "100000000", "shortLongTermDebtTotal": "300000000",
        "shortTermDebt": "50000000", "longTermDebtTotal": "250000000", "totalCurrentAssets": "400000000",
        "totalAssets": "1200000000", "totalLiab": "700000000", "intangibleAssets": "100000000", "goodWill": "50000000",
        "preferredStockTotalEquity": null, "totalStockholderEquity": "500000000"}
    }},
    "Cash_Flow": {"yearly": {
      "2023-12-31": {"totalCashFromOperatingActivities": "150000000", "freeCashFlow": "100000000"}
    }}
  }
}`

func loadFixture(t *testing.T) *models.FundamentalSnapshot {
	t.Helper()
	var f models.FundamentalSnapshot
	require.NoError(t, json.Unmarshal([]byte(fixture), &f))
	return &f
}

func fixedClock() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func TestComputeFullDocument(t *testing.T) {
	c := NewCalculator(WithClock(fixedClock))
	rec := c.Compute(loadFixture(t), numeric.Some(40))

	want := map[models.Ratio]float64{
		models.RatioPrice:           40,
		models.RatioMarketCap:       2000,
		models.RatioEnterpriseValue: 2200,
		models.RatioRevenue:         1000,
		models.RatioDividendYield:   2,
		models.RatioDebtEquity:      1.4,
		models.RatioPriceSales:      2,
		models.RatioEVEBITDA:        8.8,
		models.RatioEVEBIT:          11,
		models.RatioPriceBook:       4,
		models.RatioPriceTangible:   2000.0 / 350,
		models.RatioTrailingPE:      20,
		models.RatioForwardPE:       16,
		models.RatioPEG3yr:          16.0 / 15,
		models.RatioPriceCFO:        2000.0 / 150,
		models.RatioPriceFCF:        20,
		models.RatioPriceDividend:   40,
		models.RatioPriceCash:       20,
		models.RatioPriceNetCash:    -10,
		models.RatioPriceNetNet:     2000.0 / -300,
		models.RatioInterestCov:     10,
		models.RatioServiceCov:      3.6,
		models.RatioAssetCov:        1000.0 / 300,
	}
	require.Len(t, rec, len(want))
	for name, v := range want {
		got, ok := rec[name]
		require.True(t, ok, "missing %s", name)
		assert.InDelta(t, v, got, 1e-9, "ratio %s", name)
	}
}

func TestComputeWithoutPriceFallsBackToReportedFields(t *testing.T) {
	c := NewCalculator(WithClock(fixedClock))
	rec := c.Compute(loadFixture(t), numeric.None)

	_, hasPrice := rec[models.RatioPrice]
	assert.False(t, hasPrice)
	assert.InDelta(t, 9990, rec[models.RatioMarketCap], 1e-9)
	// 9990 + 300 - 100
	assert.InDelta(t, 10190, rec[models.RatioEnterpriseValue], 1e-9)
	for _, name := range []models.Ratio{models.RatioTrailingPE, models.RatioForwardPE, models.RatioPEG3yr} {
		_, ok := rec[name]
		assert.False(t, ok, "%s should be absent without a price", name)
	}
}

func TestComputeEmptyDocumentNeverProducesNonFinite(t *testing.T) {
	c := NewCalculator()
	for _, f := range []*models.FundamentalSnapshot{nil, {}} {
		rec := c.Compute(f, numeric.Some(10))
		for name, v := range rec {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is not finite", name)
		}
		assert.Equal(t, 10.0, rec[models.RatioPrice])
		assert.Equal(t, 0.0, rec[models.RatioDividendYield])
		_, ok := rec[models.RatioMarketCap]
		assert.False(t, ok)
	}
}

func TestMalformedFieldDegradesOnlyItsRatios(t *testing.T) {
	f := loadFixture(t)
	f.Financials.IncomeStatement.Yearly["2023-12-31"]["ebitda"] = numeric.Parse("n/a")

	rec := NewCalculator(WithClock(fixedClock)).Compute(f, numeric.Some(40))
	_, ok := rec[models.RatioEVEBITDA]
	assert.False(t, ok)
	assert.InDelta(t, 11, rec[models.RatioEVEBIT], 1e-9)
}

func TestTotalDebt(t *testing.T) {
	cases := []struct {
		name  string
		items models.LineItems
		want  float64
	}{
		{"combined field", models.LineItems{fieldDebtTotal: numeric.Some(30), fieldShortTermDebt: numeric.Some(1)}, 30},
		{"zero combined uses parts", models.LineItems{fieldDebtTotal: numeric.Some(0), fieldShortTermDebt: numeric.Some(1), fieldLongTermDebt: numeric.Some(2)}, 3},
		{"parts", models.LineItems{fieldShortTermDebt: numeric.Some(1), fieldLongTermDebt: numeric.Some(2)}, 3},
		{"one part missing", models.LineItems{fieldShortTermDebt: numeric.Some(1)}, 0},
		{"nothing", models.LineItems{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := TotalDebt(tc.items).Get()
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnterpriseValueFallbacks(t *testing.T) {
	f := &models.FundamentalSnapshot{}
	f.Valuation.EnterpriseValue = numeric.Some(5_000_000)

	ev := EnterpriseValue(f, numeric.Some(100), numeric.Some(0), numeric.None)
	assert.Equal(t, numeric.Some(5), ev, "missing cash falls back to reported EV")

	ev = EnterpriseValue(f, numeric.Some(100), numeric.Some(50), numeric.Some(150))
	assert.Equal(t, numeric.Some(5), ev, "zero EV falls back to reported EV")

	ev = EnterpriseValue(&models.FundamentalSnapshot{}, numeric.Some(100), numeric.Some(0), numeric.None)
	assert.Equal(t, numeric.Some(100), ev, "then to market cap")
}

func TestTangibleAssetsFallbacks(t *testing.T) {
	full := models.LineItems{fieldTotalAssets: numeric.Some(100), fieldIntangibles: numeric.Some(10), fieldGoodwill: numeric.Some(5)}
	assert.Equal(t, numeric.Some(85), TangibleAssets(full))

	noGoodwill := models.LineItems{fieldTotalAssets: numeric.Some(100), fieldIntangibles: numeric.Some(10)}
	assert.Equal(t, numeric.Some(90), TangibleAssets(noGoodwill))

	noIntangibles := models.LineItems{fieldTotalAssets: numeric.Some(100), fieldGoodwill: numeric.Some(5)}
	assert.Equal(t, numeric.Some(100), TangibleAssets(noIntangibles))

	assert.False(t, TangibleAssets(models.LineItems{}).Present())
}

func TestNetNetTreatsMissingClaimsAsZero(t *testing.T) {
	items := models.LineItems{fieldCurrentAssets: numeric.Some(100), fieldPreferredEquity: numeric.Some(10)}
	assert.Equal(t, numeric.Some(90), NetNet(items))

	items[fieldTotalLiabilities] = numeric.Some(40)
	assert.Equal(t, numeric.Some(50), NetNet(items))

	assert.False(t, NetNet(models.LineItems{fieldTotalLiabilities: numeric.Some(1)}).Present())
}

func TestPEG(t *testing.T) {
	trend := map[string]models.EarningsTrend{
		"2024-06-01": {EarningsEstimateGrowth: numeric.Some(0.2)},
		"2024-05-31": {EarningsEstimateGrowth: numeric.Some(9)},
		"0000-00-00": {EarningsEstimateGrowth: numeric.Some(9)},
	}
	now := fixedClock()
	peg, ok := PEG(numeric.Some(20), trend, now).Get()
	require.True(t, ok)
	assert.InDelta(t, 1.0, peg, 1e-12)
	assert.False(t, PEG(numeric.None, trend, now).Present())
	assert.False(t, PEG(numeric.Some(0), trend, now).Present())
	assert.False(t, PEG(numeric.Some(20), nil, now).Present())

	zeroGrowth := map[string]models.EarningsTrend{"2030-01-01": {EarningsEstimateGrowth: numeric.Some(0)}}
	assert.False(t, PEG(numeric.Some(20), zeroGrowth, now).Present())
}
