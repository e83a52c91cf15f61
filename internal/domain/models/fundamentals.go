package models

import (
	"bytes"
	"encoding/json"
	"sort"

	"FinPeer/internal/services/numeric"
)

// CommonStock is the only security type the engine values.
const CommonStock = "Common Stock"

// MaxAnnualPeriods bounds the yearly history kept from a fundamentals document.
const MaxAnnualPeriods = 20

// FundamentalSnapshot is the fundamentals document supplied by the data
// retrieval collaborator. Unknown keys are ignored and every numeric leaf
// tolerates numbers, numeric strings and null.
type FundamentalSnapshot struct {
	General     General     `json:"General"`
	Highlights  Highlights  `json:"Highlights"`
	Valuation   Valuation   `json:"Valuation"`
	SharesStats SharesStats `json:"SharesStats"`
	Earnings    Earnings    `json:"Earnings"`
	Financials  Financials  `json:"Financials"`
}

type General struct {
	Code         string `json:"Code"`
	Type         string `json:"Type"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	GicSector    string `json:"GicSector"`
	GicIndustry  string `json:"GicIndustry"`
}

type Highlights struct {
	MarketCapitalization numeric.Opt `json:"MarketCapitalization"`
	EPSEstimateNextYear  numeric.Opt `json:"EPSEstimateNextYear"`
	DividendShare        numeric.Opt `json:"DividendShare"`
	DividendYield        numeric.Opt `json:"DividendYield"`
}

type Valuation struct {
	EnterpriseValue numeric.Opt `json:"EnterpriseValue"`
}

type SharesStats struct {
	SharesOutstanding       numeric.Opt `json:"SharesOutstanding"`
	PercentInsiders         numeric.Opt `json:"PercentInsiders"`
	PercentInstitutions     numeric.Opt `json:"PercentInstitutions"`
	ShortPercentOutstanding numeric.Opt `json:"ShortPercentOutstanding"`
}

type Earnings struct {
	Trend map[string]EarningsTrend `json:"Trend"`
}

type EarningsTrend struct {
	Date                             string      `json:"date"`
	Period                           string      `json:"period"`
	EarningsEstimateAvg              numeric.Opt `json:"earningsEstimateAvg"`
	EarningsEstimateGrowth           numeric.Opt `json:"earningsEstimateGrowth"`
	EarningsEstimateNumberOfAnalysts numeric.Opt `json:"earningsEstimateNumberOfAnalysts"`
	RevenueEstimateAvg               numeric.Opt `json:"revenueEstimateAvg"`
	RevenueEstimateGrowth            numeric.Opt `json:"revenueEstimateGrowth"`
	RevenueEstimateNumberOfAnalysts  numeric.Opt `json:"revenueEstimateNumberOfAnalysts"`
}

type Financials struct {
	BalanceSheet    Statement `json:"Balance_Sheet"`
	CashFlow        Statement `json:"Cash_Flow"`
	IncomeStatement Statement `json:"Income_Statement"`
}

// Statement holds yearly line items keyed by ISO date.
type Statement struct {
	Yearly map[string]LineItems `json:"yearly"`
}

// UnmarshalJSON tolerates the empty-array form providers emit for missing statements.
func (s *Statement) UnmarshalJSON(b []byte) error {
	var raw struct {
		Yearly json.RawMessage `json:"yearly"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		// "[]" or scalar: no data
		*s = Statement{}
		return nil
	}
	s.Yearly = nil
	y := bytes.TrimSpace(raw.Yearly)
	if len(y) == 0 || y[0] != '{' {
		return nil
	}
	return json.Unmarshal(y, &s.Yearly)
}

// LineItems are statement values by field name, e.g. "totalAssets".
type LineItems map[string]numeric.Opt

// Get returns the named item; a missing key is absent.
func (l LineItems) Get(name string) numeric.Opt {
	if l == nil {
		return numeric.None
	}
	return l[name]
}

// AnnualPeriod is one reporting date with all three statements merged.
type AnnualPeriod struct {
	Date  string
	Items LineItems
}

// AnnualSeries merges income, cash-flow and balance-sheet items per income
// statement date, keeps the newest MaxAnnualPeriods and returns them oldest
// first. Amounts are rescaled to millions.
func (f *FundamentalSnapshot) AnnualSeries() []AnnualPeriod {
	income := f.Financials.IncomeStatement.Yearly
	if len(income) == 0 {
		return nil
	}
	dates := make([]string, 0, len(income))
	for d := range income {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > MaxAnnualPeriods {
		dates = dates[:MaxAnnualPeriods]
	}

	out := make([]AnnualPeriod, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- {
		d := dates[i]
		items := make(LineItems)
		for _, st := range []map[string]LineItems{income, f.Financials.CashFlow.Yearly, f.Financials.BalanceSheet.Yearly} {
			for k, v := range st[d] {
				items[k] = numeric.RescaleToMillions(v)
			}
		}
		out = append(out, AnnualPeriod{Date: d, Items: items})
	}
	return out
}

// LatestAnnual returns the newest merged period, or an empty period when the
// document carries no statements.
func (f *FundamentalSnapshot) LatestAnnual() AnnualPeriod {
	series := f.AnnualSeries()
	if len(series) == 0 {
		return AnnualPeriod{Items: LineItems{}}
	}
	return series[len(series)-1]
}

// IsCommonStock reports whether the document describes common equity.
func (f *FundamentalSnapshot) IsCommonStock() bool {
	return f.General.Type == CommonStock
}

// BucketKey derives the peer bucket; fallbackExchange is used when the
// document has no exchange.
func (f *FundamentalSnapshot) BucketKey(fallbackExchange string) BucketKey {
	ex := f.General.Exchange
	if ex == "" {
		ex = fallbackExchange
	}
	return BucketKey{Exchange: ex, Industry: IndustryKey(f.General.GicSector, f.General.Sector)}
}
