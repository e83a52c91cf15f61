package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"FinPeer/internal/services/numeric"
)

// Ratio is the persisted name of a valuation ratio.
type Ratio string

const (
	RatioPrice           Ratio = "Price"
	RatioMarketCap       Ratio = "MktCap"
	RatioEnterpriseValue Ratio = "EV"
	RatioRevenue         Ratio = "Revenue"
	RatioDividendYield   Ratio = "Div Yield"
	RatioDebtEquity      Ratio = "Debt/Equity"
	RatioPriceSales      Ratio = "P/S"
	RatioEVEBITDA        Ratio = "EV/EBITDA"
	RatioEVEBIT          Ratio = "EV/EBIT"
	RatioPriceBook       Ratio = "P/B"
	RatioPriceTangible   Ratio = "P/TB"
	RatioTrailingPE      Ratio = "Trailing P/E"
	RatioForwardPE       Ratio = "Forward P/E"
	RatioPEG3yr          Ratio = "PEG 3yr"
	RatioPriceCFO        Ratio = "P/CFO"
	RatioPriceFCF        Ratio = "P/FCF"
	RatioPriceDividend   Ratio = "P/Div"
	RatioPriceCash       Ratio = "P/Cash"
	RatioPriceNetCash    Ratio = "P/NCash"
	RatioPriceNetNet     Ratio = "P/NN"
	RatioInterestCov     Ratio = "Interest Cov"
	RatioServiceCov      Ratio = "Service Cov"
	RatioAssetCov        Ratio = "Asset Cov"
)

// AllRatios lists every ratio in report order.
var AllRatios = []Ratio{
	RatioPrice, RatioMarketCap, RatioEnterpriseValue, RatioRevenue, RatioDividendYield,
	RatioDebtEquity, RatioPriceSales, RatioEVEBITDA, RatioEVEBIT, RatioPriceBook,
	RatioPriceTangible, RatioTrailingPE, RatioForwardPE, RatioPEG3yr, RatioPriceCFO,
	RatioPriceFCF, RatioPriceDividend, RatioPriceCash, RatioPriceNetCash, RatioPriceNetNet,
	RatioInterestCov, RatioServiceCov, RatioAssetCov,
}

// NonNegativeRatios are ratios whose negative values carry no economic meaning
// and are dropped before a record joins a bucket.
var NonNegativeRatios = map[Ratio]struct{}{
	RatioPriceSales:    {},
	RatioEVEBITDA:      {},
	RatioEVEBIT:        {},
	RatioPriceTangible: {},
	RatioPriceBook:     {},
	RatioDebtEquity:    {},
	RatioTrailingPE:    {},
	RatioForwardPE:     {},
	RatioPriceCFO:      {},
	RatioPriceFCF:      {},
	RatioPriceDividend: {},
	RatioPriceCash:     {},
	RatioPriceNetCash:  {},
}

// RatioRecord maps ratio names to finite values. A missing key means absent.
type RatioRecord map[Ratio]float64

// Get returns the value for name as an optional number.
func (r RatioRecord) Get(name Ratio) numeric.Opt {
	v, ok := r[name]
	if !ok {
		return numeric.None
	}
	return numeric.Some(v)
}

// Set stores v, or removes name when v is absent.
func (r RatioRecord) Set(name Ratio, v numeric.Opt) {
	if f, ok := v.Get(); ok {
		r[name] = f
		return
	}
	delete(r, name)
}

func (r RatioRecord) Clone() RatioRecord {
	out := make(RatioRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CompanyEntry is one company inside a bucket. It serialises flat:
// {"Code": "AAPL", "P/B": 1.2, ...}.
type CompanyEntry struct {
	Code   string
	Ratios RatioRecord
}

func (e CompanyEntry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(e.Ratios)+1)
	flat["Code"] = e.Code
	for k, v := range e.Ratios {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		flat[string(k)] = v
	}
	return json.Marshal(flat)
}

func (e *CompanyEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	codeRaw, ok := raw["Code"]
	if !ok {
		return fmt.Errorf("company entry without Code")
	}
	var code string
	if err := json.Unmarshal(codeRaw, &code); err != nil || code == "" {
		return fmt.Errorf("company entry has invalid Code %s", string(codeRaw))
	}
	e.Code = code
	e.Ratios = make(RatioRecord, len(raw)-1)
	for k, v := range raw {
		if k == "Code" || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			// legacy placeholders such as "" carry no value
			continue
		}
		e.Ratios.Set(Ratio(k), numeric.Some(f))
	}
	return nil
}

// Bucket is the persisted population of one (exchange, industry) pair.
type Bucket struct {
	Companies []CompanyEntry `json:"Companies"`
}

// Index returns the position of code, or -1.
func (b *Bucket) Index(code string) int {
	for i := range b.Companies {
		if b.Companies[i].Code == code {
			return i
		}
	}
	return -1
}

// Codes returns the sorted company codes of the bucket.
func (b *Bucket) Codes() []string {
	out := make([]string, 0, len(b.Companies))
	for _, c := range b.Companies {
		out = append(out, c.Code)
	}
	sort.Strings(out)
	return out
}
