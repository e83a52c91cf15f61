package encoder

import (
	"FinPeer/internal/domain/models"
	"FinPeer/internal/services/numeric"
)

// Leverage thresholds on Debt/Equity.
const (
	LeverageCaution = 0.8
	LeverageDanger  = 1.5
)

// Share statistic names shown next to the ratio table.
const (
	PercentInsiders         = "Percent Insiders"
	PercentInstitutions     = "Percent Institutions"
	ShortPercentOutstanding = "Short Percent"
	LeverageLight           = "Leverage"
)

type reference struct {
	median, mad float64
	polarity    models.Polarity
}

// Share statistics have no bucket population; they are scored against fixed
// reference points.
var shareReferences = map[string]reference{
	PercentInsiders:         {median: 5, mad: 3, polarity: models.LargeIsGood},
	PercentInstitutions:     {median: 50, mad: 15, polarity: models.LargeIsGood},
	// a high short interest is scored unfavorable
	ShortPercentOutstanding: {median: 0, mad: 2, polarity: models.SmallIsGood},
}

// Leverage is a traffic light on Debt/Equity.
func (e *Encoder) Leverage(debtEquity numeric.Opt) models.Encoding {
	v, ok := debtEquity.Get()
	if !ok {
		return models.Encoding{DisplayValue: Missing, Direction: models.DirectionNeutral}
	}
	enc := models.Encoding{
		DisplayValue: FormatValue(v, models.Style{}),
		Value:        debtEquity.Ptr(),
		Intensity:    1 / e.alphaScale,
	}
	switch {
	case v > LeverageDanger:
		enc.Direction = models.DirectionUnfavorable
	case v > LeverageCaution:
		enc.Direction = models.DirectionCaution
	default:
		enc.Direction = models.DirectionFavorable
	}
	return enc
}

// ShareStat encodes one share statistic (already a percentage) against its
// fixed reference.
func (e *Encoder) ShareStat(name string, value numeric.Opt) models.Encoding {
	ref, ok := shareReferences[name]
	if !ok {
		return e.Encode(value, numeric.None, numeric.None, models.Style{Percent: true, DontRound: true})
	}
	st := models.Style{Polarity: ref.polarity, Percent: true, DontRound: true}
	return e.Encode(value, numeric.Some(ref.median), numeric.Some(ref.mad), st)
}

// Extras builds the leverage light and share statistic encodings of a company.
func (e *Encoder) Extras(rec models.RatioRecord, f *models.FundamentalSnapshot) map[string]models.Encoding {
	out := map[string]models.Encoding{
		LeverageLight: e.Leverage(rec.Get(models.RatioDebtEquity)),
	}
	if f == nil {
		return out
	}
	ss := f.SharesStats
	out[PercentInsiders] = e.ShareStat(PercentInsiders, ss.PercentInsiders)
	out[PercentInstitutions] = e.ShareStat(PercentInstitutions, ss.PercentInstitutions)
	out[ShortPercentOutstanding] = e.ShareStat(ShortPercentOutstanding, ss.ShortPercentOutstanding)
	return out
}
