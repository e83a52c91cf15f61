// Package history lays out a company's own yearly figures and analyst
// estimates as period tables, scoring every cell against the rest of its row.
package history

import (
	"math"
	"sort"
	"time"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/encoder"
	"FinPeer/internal/services/numeric"
	"FinPeer/internal/services/stats"
	"FinPeer/pkg/util"
)

// EstimateLookbackMonths is how far back estimate periods are still shown.
const EstimateLookbackMonths = 6

// rollingWindow is the width of the trailing averages, in years.
const rollingWindow = 3

var (
	amount      = models.Style{Polarity: models.LargeIsGood}
	smallAmount = models.Style{Polarity: models.SmallIsGood}
	pct         = models.Style{Polarity: models.LargeIsGood, Percent: true}
	smallPct    = models.Style{Polarity: models.SmallIsGood, Percent: true}
)

type row struct {
	name   string
	style  models.Style
	values series
}

// Builder turns fundamentals into period tables.
type Builder struct {
	enc *encoder.Encoder
	now func() time.Time
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(enc *encoder.Encoder, opts ...Option) *Builder {
	b := &Builder{enc: enc, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Annual builds the yearly table, oldest period first. It returns nil when
// the snapshot has no income statement.
func (b *Builder) Annual(f *models.FundamentalSnapshot) *models.PeriodTable {
	if f == nil {
		return nil
	}
	periods := f.AnnualSeries()
	if len(periods) == 0 {
		return nil
	}
	item := func(name string) series { return column(periods, name) }

	shares := item("commonStockSharesOutstanding")
	revenue := item("totalRevenue")
	netIncome := item("netIncome")
	equity := item("totalStockholderEquity")
	fcf := item("freeCashFlow")
	investedCapital := item("totalLiab").add(equity).sub(item("cash"))
	eps := item("netIncomeApplicableToCommonShares").orElse(netIncome).div(shares)
	book := item("totalAssets").sub(item("totalLiab"))
	margin := func(name string) series { return item(name).div(revenue).percent() }

	overhang := make(series, len(periods))
	for i, p := range periods {
		debt := numeric.ZeroIfMissing(p.Items.Get("shortTermDebt")) +
			numeric.ZeroIfMissing(p.Items.Get("nonCurrentLiabilitiesTotal")) -
			numeric.ZeroIfMissing(p.Items.Get("cashAndShortTermInvestments"))
		overhang[i] = numeric.Some(float64(debt))
	}

	rows := []row{
		{"Shares Outstanding", smallAmount, shares},
		{"Revenues", amount, revenue},
		{"Revenue Increase", pct, revenue.pctChange().percent()},
		{"Revenue Increase 3yr", pct, revenue.rolling().pctChange().percent()},
		{"Net Margin Avg3", pct, netIncome.div(revenue).rolling().percent()},
		{"ROE Avg3", pct, netIncome.div(equity.rolling()).percent()},
		{"ROIC Avg3", pct, item("ebit").sub(item("incomeTaxExpense")).div(investedCapital).rolling().percent()},
		{"CROIC Avg3", pct, fcf.div(investedCapital).rolling().percent()},
		{"Gross Margin", pct, margin("grossProfit")},
		{"EBITDA Margin", pct, margin("ebitda")},
		{"Net Inc Margin", pct, margin("netIncome")},
		{"CFO Margin", pct, margin("totalCashFromOperatingActivities")},
		{"FCF Margin", pct, margin("freeCashFlow")},
		{"NCF Margin", pct, margin("changeInCash")},
		{"Net Income", amount, netIncome},
		{"Common EPS", amount, eps},
		{"EPS Increase 3yr", pct, eps.rolling().pctChange().percent()},
		{"EBITDA /sh", amount, item("ebitda").div(shares)},
		{"CFO /sh", amount, item("totalCashFromOperatingActivities").div(shares)},
		{"FCF /sh", amount, fcf.div(shares)},
		{"RND Margin", pct, margin("researchDevelopment")},
		{"Marketing Margin", smallPct, margin("sellingAndMarketingExpenses")},
		{"General Margin", smallPct, margin("sellingGeneralAdministrative")},
		{"Assets /sh", amount, item("totalAssets").div(shares)},
		{"Book /sh", amount, book.div(shares)},
		{"Tang Book /sh", amount, book.sub(item("intangibleAssets")).div(shares)},
		{"Debt Overhang", smallAmount, overhang},
	}

	labels := make([]string, len(periods))
	for i, p := range periods {
		labels[i] = p.Date
	}
	return b.table(labels, rows)
}

// Estimates builds the analyst estimate table from trend periods dated no
// earlier than EstimateLookbackMonths before today, oldest first. It returns
// nil when no period qualifies.
func (b *Builder) Estimates(f *models.FundamentalSnapshot) *models.PeriodTable {
	if f == nil || len(f.Earnings.Trend) == 0 {
		return nil
	}
	cutoff := b.now().UTC().Truncate(24*time.Hour).AddDate(0, -EstimateLookbackMonths, 0)

	keys := make([]string, 0, len(f.Earnings.Trend))
	for k := range f.Earnings.Trend {
		d, ok := util.ParseTime(k)
		if !ok || d.Before(cutoff) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	n := len(keys)
	var (
		labels      = make([]string, n)
		revAvg      = make(series, n)
		revGrowth   = make(series, n)
		epsAvg      = make(series, n)
		epsGrowth   = make(series, n)
		epsAnalysts = make(series, n)
		revAnalysts = make(series, n)
	)
	for i, k := range keys {
		t := f.Earnings.Trend[k]
		labels[i] = k
		if t.Period != "" {
			labels[i] += " (" + t.Period + ")"
		}
		revAvg[i] = numeric.RescaleToMillions(t.RevenueEstimateAvg)
		revGrowth[i] = numeric.ToPercentage(t.RevenueEstimateGrowth)
		epsAvg[i] = t.EarningsEstimateAvg
		epsGrowth[i] = numeric.ToPercentage(t.EarningsEstimateGrowth)
		epsAnalysts[i] = t.EarningsEstimateNumberOfAnalysts
		revAnalysts[i] = t.RevenueEstimateNumberOfAnalysts
	}
	sharesM := numeric.RescaleToMillions(f.SharesStats.SharesOutstanding)
	netIncome := make(series, n)
	for i := range epsAvg {
		netIncome[i] = epsAvg[i].Mul(sharesM)
	}

	return b.table(labels, []row{
		{"Revenue Est Avg", amount, revAvg},
		{"Revenue Est Growth", pct, revGrowth},
		{"EPS Est Avg", amount, epsAvg},
		{"Net Income Equiv", amount, netIncome},
		{"EPS Est Growth", pct, epsGrowth},
		{"EPS Est Num of Analysts", amount, epsAnalysts},
		{"Revenue Est Number of Analysts", amount, revAnalysts},
	})
}

func (b *Builder) table(labels []string, rows []row) *models.PeriodTable {
	out := &models.PeriodTable{Periods: labels, Rows: make([]models.PeriodRow, 0, len(rows))}
	for _, r := range rows {
		mean, std := r.values.moments()
		cells := make([]models.Encoding, len(r.values))
		for i, v := range r.values {
			cells[i] = b.enc.Encode(v, mean, std, r.style)
		}
		out.Rows = append(out.Rows, models.PeriodRow{Name: r.name, Cells: cells})
	}
	return out
}

// series is one value per period, oldest first.
type series []numeric.Opt

func column(periods []models.AnnualPeriod, name string) series {
	out := make(series, len(periods))
	for i, p := range periods {
		out[i] = p.Items.Get(name)
	}
	return out
}

func (s series) zip(o series, f func(a, b numeric.Opt) numeric.Opt) series {
	out := make(series, len(s))
	for i := range s {
		out[i] = f(s[i], o[i])
	}
	return out
}

func (s series) add(o series) series { return s.zip(o, numeric.Opt.Add) }
func (s series) sub(o series) series { return s.zip(o, numeric.Opt.Sub) }
func (s series) div(o series) series { return s.zip(o, numeric.SafeDivide) }

func (s series) orElse(o series) series {
	return s.zip(o, func(a, b numeric.Opt) numeric.Opt { return a.OrElse(b) })
}

// rolling is the trailing mean over rollingWindow periods, skipping absent values.
func (s series) rolling() series {
	out := make(series, len(s))
	for i := range s {
		var sum float64
		var n int
		for j := max(0, i-rollingWindow+1); j <= i; j++ {
			if v, ok := s[j].Get(); ok {
				sum += v
				n++
			}
		}
		if n > 0 {
			out[i] = numeric.Some(sum / float64(n))
		}
	}
	return out
}

// pctChange is the fractional change from the previous period.
func (s series) pctChange() series {
	out := make(series, len(s))
	for i := 1; i < len(s); i++ {
		if r, ok := numeric.SafeDivide(s[i], s[i-1]).Get(); ok {
			out[i] = numeric.Some(r - 1)
		}
	}
	return out
}

// percent clips fractions to [-1, 1] and scales them to percent.
func (s series) percent() series {
	out := make(series, len(s))
	for i, o := range s {
		if v, ok := o.Get(); ok {
			out[i] = numeric.Some(math.Max(-1, math.Min(1, v)) * 100)
		}
	}
	return out
}

// moments returns the mean and population standard deviation of the present
// values, both absent when there are none.
func (s series) moments() (numeric.Opt, numeric.Opt) {
	values := make([]float64, 0, len(s))
	for _, o := range s {
		if v, ok := o.Get(); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return numeric.None, numeric.None
	}
	m := stats.Mean(values)
	return numeric.Some(m), numeric.Some(stats.StdDev(values, m))
}
