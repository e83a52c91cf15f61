package encoder

import (
	"strings"

	"FinPeer/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Missing is the display value of an absent number.
const Missing = "-"

// FormatValue renders v with thousands separators: two decimals by default,
// an integer for percentages unless DontRound is set.
func FormatValue(v float64, st models.Style) string {
	places := int32(2)
	if st.Percent && !st.DontRound {
		places = 0
	}
	s := groupThousands(decimal.NewFromFloat(v).Round(places).StringFixed(places))
	if st.Percent {
		s += "%"
	}
	return s
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}
