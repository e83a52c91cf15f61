package encoder

import "FinPeer/internal/domain/models"

var largeIsGood = map[models.Ratio]bool{
	models.RatioRevenue:       true,
	models.RatioDividendYield: true,
}

// Size columns are not judged for sign.
var signless = map[models.Ratio]bool{
	models.RatioPrice:     true,
	models.RatioMarketCap: true,
	models.RatioRevenue:   true,
}

// StyleFor returns the display and judgement style of a ratio.
func StyleFor(name models.Ratio) models.Style {
	st := models.Style{Polarity: models.SmallIsGood, RedIfNegative: !signless[name]}
	if largeIsGood[name] {
		st.Polarity = models.LargeIsGood
	}
	if name == models.RatioDividendYield {
		st.Percent = true
		st.DontRound = true
	}
	return st
}

// DefaultStyles returns the style of every known ratio.
func DefaultStyles() map[models.Ratio]models.Style {
	out := make(map[models.Ratio]models.Style, len(models.AllRatios))
	for _, name := range models.AllRatios {
		out[name] = StyleFor(name)
	}
	return out
}
