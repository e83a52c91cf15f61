package util

import (
	"strconv"
	"time"
)

// ISODate is the layout of statement and earnings-trend period keys.
const ISODate = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, ISO date and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, ISODate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}
