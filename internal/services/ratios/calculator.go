// Package ratios derives cross-statement valuation ratios from a fundamentals
// document and a market price.
package ratios

import (
	"time"

	"FinPeer/internal/domain/models"
	dservice "FinPeer/internal/domain/service"
	"FinPeer/internal/services/numeric"
	"FinPeer/pkg/util"
)

// Balance sheet, income statement and cash flow field names.
const (
	fieldRevenue          = "totalRevenue"
	fieldNetIncome        = "netIncome"
	fieldSharesOut        = "commonStockSharesOutstanding"
	fieldCash             = "cash"
	fieldDebtTotal        = "shortLongTermDebtTotal"
	fieldShortTermDebt    = "shortTermDebt"
	fieldLongTermDebt     = "longTermDebtTotal"
	fieldEBITDA           = "ebitda"
	fieldEBIT             = "ebit"
	fieldCurrentAssets    = "totalCurrentAssets"
	fieldTotalAssets      = "totalAssets"
	fieldTotalLiabilities = "totalLiab"
	fieldIntangibles      = "intangibleAssets"
	fieldGoodwill         = "goodWill"
	fieldPreferredEquity  = "preferredStockTotalEquity"
	fieldStockholderEq    = "totalStockholderEquity"
	fieldOperatingCF      = "totalCashFromOperatingActivities"
	fieldFreeCF           = "freeCashFlow"
	fieldInterestExpense  = "interestExpense"
	fieldOperatingIncome  = "operatingIncome"
)

// Calculator is stateless apart from its clock, which decides which earnings
// growth estimates are forward looking.
type Calculator struct {
	now func() time.Time
}

var _ dservice.RatioCalculator = (*Calculator)(nil)

type Option func(*Calculator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compute never fails: any missing or malformed input degrades only the
// ratios that depend on it.
func (c *Calculator) Compute(f *models.FundamentalSnapshot, price numeric.Opt) models.RatioRecord {
	if f == nil {
		f = &models.FundamentalSnapshot{}
	}
	items := f.LatestAnnual().Items
	get := items.Get

	shares := SharesOutstanding(f, items)
	marketCap := MarketCap(f, shares, price)
	totalDebt := TotalDebt(items)
	cash := get(fieldCash)
	ev := EnterpriseValue(f, marketCap, totalDebt, cash)

	trailingEPS := numeric.SafeDivide(get(fieldNetIncome), shares)
	forwardPE := numeric.SafeDivide(price, f.Highlights.EPSEstimateNextYear)

	totalAssets := get(fieldTotalAssets)
	totalLiab := get(fieldTotalLiabilities)
	bookValue := totalAssets.Sub(totalLiab)
	tangibleAssets := TangibleAssets(items)
	tangibleBook := tangibleAssets.Sub(totalLiab)
	netCash := cash.Sub(totalDebt)
	dividend := f.Highlights.DividendShare.Mul(shares)
	shortTermDebt := get(fieldShortTermDebt)

	r := make(models.RatioRecord, len(models.AllRatios))
	r.Set(models.RatioPrice, price)
	r.Set(models.RatioMarketCap, marketCap)
	r.Set(models.RatioEnterpriseValue, ev)
	r.Set(models.RatioRevenue, get(fieldRevenue))
	r.Set(models.RatioDividendYield, numeric.ToPercentage(f.Highlights.DividendYield.OrElse(numeric.Some(0))))
	r.Set(models.RatioDebtEquity, numeric.SafeDivide(totalLiab, get(fieldStockholderEq)))
	r.Set(models.RatioPriceSales, numeric.SafeDivide(marketCap, get(fieldRevenue)))
	r.Set(models.RatioEVEBITDA, numeric.SafeDivide(ev, get(fieldEBITDA)))
	r.Set(models.RatioEVEBIT, numeric.SafeDivide(ev, get(fieldEBIT)))
	r.Set(models.RatioPriceBook, numeric.SafeDivide(marketCap, bookValue))
	r.Set(models.RatioPriceTangible, numeric.SafeDivide(marketCap, tangibleBook))
	r.Set(models.RatioTrailingPE, numeric.SafeDivide(price, trailingEPS))
	r.Set(models.RatioForwardPE, forwardPE)
	r.Set(models.RatioPEG3yr, PEG(forwardPE, f.Earnings.Trend, c.now()))
	r.Set(models.RatioPriceCFO, numeric.SafeDivide(marketCap, get(fieldOperatingCF)))
	r.Set(models.RatioPriceFCF, numeric.SafeDivide(marketCap, get(fieldFreeCF)))
	r.Set(models.RatioPriceDividend, numeric.SafeDivide(marketCap, dividend))
	r.Set(models.RatioPriceCash, numeric.SafeDivide(marketCap, cash))
	r.Set(models.RatioPriceNetCash, numeric.SafeDivide(marketCap, netCash))
	r.Set(models.RatioPriceNetNet, numeric.SafeDivide(marketCap, NetNet(items)))
	r.Set(models.RatioInterestCov, numeric.SafeDivide(get(fieldEBIT), get(fieldInterestExpense)))
	r.Set(models.RatioServiceCov, numeric.SafeDivide(get(fieldOperatingIncome), shortTermDebt))
	r.Set(models.RatioAssetCov, numeric.SafeDivide(tangibleAssets.Sub(shortTermDebt), totalDebt))
	return r
}

// SharesOutstanding in millions: balance sheet first, then share statistics.
func SharesOutstanding(f *models.FundamentalSnapshot, items models.LineItems) numeric.Opt {
	return items.Get(fieldSharesOut).OrElse(
		numeric.RescaleToMillions(f.SharesStats.SharesOutstanding),
	)
}

// MarketCap in millions: shares × price, then the reported capitalisation.
func MarketCap(f *models.FundamentalSnapshot, shares, price numeric.Opt) numeric.Opt {
	return shares.Mul(price).OrElse(
		numeric.RescaleToMillions(f.Highlights.MarketCapitalization).NonZero(),
	)
}

// TotalDebt: the combined debt field when non-zero, then short + long term, then zero.
func TotalDebt(items models.LineItems) numeric.Opt {
	return items.Get(fieldDebtTotal).NonZero().OrElse(
		items.Get(fieldShortTermDebt).Add(items.Get(fieldLongTermDebt)),
		numeric.Some(0),
	)
}

// EnterpriseValue: market cap + debt − cash, then the reported value, then market cap.
func EnterpriseValue(f *models.FundamentalSnapshot, marketCap, totalDebt, cash numeric.Opt) numeric.Opt {
	return marketCap.Add(totalDebt).Sub(cash).NonZero().OrElse(
		numeric.RescaleToMillions(f.Valuation.EnterpriseValue),
		marketCap,
	)
}

// TangibleAssets subtracts intangibles and goodwill, dropping whichever
// subtrahend is unavailable: without goodwill only intangibles are removed,
// without intangibles total assets are returned as is.
func TangibleAssets(items models.LineItems) numeric.Opt {
	total := items.Get(fieldTotalAssets)
	intangibles := items.Get(fieldIntangibles)
	return total.Sub(intangibles).Sub(items.Get(fieldGoodwill)).OrElse(
		total.Sub(intangibles),
		total,
	)
}

// NetNet is current assets less liabilities and preferred equity, each of the
// latter counted as zero when missing.
func NetNet(items models.LineItems) numeric.Opt {
	claims := items.Get(fieldTotalLiabilities).Or(0) + items.Get(fieldPreferredEquity).Or(0)
	return items.Get(fieldCurrentAssets).Sub(numeric.Some(claims))
}

// PEG divides forward P/E by the mean earnings growth (as a percentage) of
// trend periods dated today or later.
func PEG(forwardPE numeric.Opt, trend map[string]models.EarningsTrend, now time.Time) numeric.Opt {
	if !forwardPE.NonZero().Present() {
		return numeric.None
	}
	today := now.UTC().Truncate(24 * time.Hour)
	var sum float64
	var n int
	for period, t := range trend {
		d, ok := util.ParseTime(period)
		if !ok || d.Before(today) {
			continue
		}
		g, ok := t.EarningsEstimateGrowth.Get()
		if !ok {
			continue
		}
		sum += g
		n++
	}
	if n == 0 {
		return numeric.None
	}
	return numeric.SafeDivide(forwardPE, numeric.Some(100*sum/float64(n)))
}
