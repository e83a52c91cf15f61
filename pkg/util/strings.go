package util

import "strings"

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitTicker splits "AAPL.US" into ("AAPL", "US"). A ticker without an
// exchange suffix returns def as the exchange.
func SplitTicker(ticker, def string) (code, exchange string) {
	ticker = strings.TrimSpace(ticker)
	if i := strings.LastIndex(ticker, "."); i > 0 && i < len(ticker)-1 {
		return ticker[:i], ticker[i+1:]
	}
	return ticker, def
}

var reservedNames = map[string]struct{}{
	"PRN": {}, "CON": {}, "AUX": {}, "NUL": {}, "TRAK": {},
}

// SafeFileName makes name usable as a file name on every platform: path
// separators become "_" and reserved device names get a "_" suffix. Names
// made of a reserved name and trailing underscores get one more "_", so the
// suffix stays reversible with OriginalFileName.
func SafeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "." || name == ".." {
		return strings.Repeat("_", len(name))
	}
	if reservedStem(name) {
		return name + "_"
	}
	return name
}

// OriginalFileName reverses the reserved-name suffix added by SafeFileName.
// Characters replaced by "_" cannot be recovered.
func OriginalFileName(file string) string {
	if strings.HasSuffix(file, "_") && reservedStem(file) {
		return file[:len(file)-1]
	}
	return file
}

func reservedStem(name string) bool {
	_, reserved := reservedNames[strings.ToUpper(strings.TrimRight(name, "_"))]
	return reserved
}
