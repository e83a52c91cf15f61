// Package numeric holds the optional-number type used throughout the valuation
// engine together with the sanitising helpers (safe division, unit rescaling,
// percentage conversion and rounding).
package numeric

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Opt is a number that may be absent. NaN and ±Inf are never present:
// constructing an Opt from a non-finite value yields an absent Opt.
type Opt struct {
	v  float64
	ok bool
}

// None is the absent value.
var None = Opt{}

// Some wraps v, normalising non-finite values to absent.
func Some(v float64) Opt {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return None
	}
	return Opt{v: v, ok: true}
}

// FromPtr converts a nullable float.
func FromPtr(p *float64) Opt {
	if p == nil {
		return None
	}
	return Some(*p)
}

// Parse reads a numeric string. Empty, "null", "NA" and malformed input are absent.
func Parse(s string) Opt {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "na", "n/a", "nan", "-":
		return None
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return None
	}
	return Some(f)
}

func (o Opt) Get() (float64, bool) { return o.v, o.ok }
func (o Opt) Present() bool        { return o.ok }

// Or returns the value or def when absent.
func (o Opt) Or(def float64) float64 {
	if !o.ok {
		return def
	}
	return o.v
}

// OrElse returns o when present, otherwise the first present alternative.
func (o Opt) OrElse(alts ...Opt) Opt {
	if o.ok {
		return o
	}
	for _, a := range alts {
		if a.ok {
			return a
		}
	}
	return None
}

// NonZero treats zero as absent.
func (o Opt) NonZero() Opt {
	if o.ok && o.v == 0 {
		return None
	}
	return o
}

// Ptr returns nil for an absent value.
func (o Opt) Ptr() *float64 {
	if !o.ok {
		return nil
	}
	v := o.v
	return &v
}

func (o Opt) Add(b Opt) Opt {
	if !o.ok || !b.ok {
		return None
	}
	return Some(o.v + b.v)
}

func (o Opt) Sub(b Opt) Opt {
	if !o.ok || !b.ok {
		return None
	}
	return Some(o.v - b.v)
}

func (o Opt) Mul(b Opt) Opt {
	if !o.ok || !b.ok {
		return None
	}
	return Some(o.v * b.v)
}

func (o Opt) String() string {
	if !o.ok {
		return "<absent>"
	}
	return strconv.FormatFloat(o.v, 'f', -1, 64)
}

// MarshalJSON writes null for an absent value.
func (o Opt) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

// UnmarshalJSON accepts numbers, numeric strings and null. Anything else
// decodes to absent rather than failing the surrounding document.
func (o *Opt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*o = None
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*o = Parse(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return nil
	}
	*o = Some(f)
	return nil
}
