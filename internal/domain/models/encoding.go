package models

// Direction tells the renderer which way a value deviates from its peers.
type Direction string

const (
	DirectionFavorable   Direction = "favorable"
	DirectionUnfavorable Direction = "unfavorable"
	DirectionNeutral     Direction = "neutral"
	// DirectionCaution is only produced by the leverage traffic light.
	DirectionCaution Direction = "caution"
)

// Polarity says whether large or small values are economically favorable.
type Polarity string

const (
	LargeIsGood Polarity = "large"
	SmallIsGood Polarity = "small"
)

// Style describes how a single ratio is judged and displayed.
type Style struct {
	Polarity      Polarity `json:"polarity"`
	RedIfNegative bool     `json:"red_if_negative"`
	Percent       bool     `json:"percent"`
	DontRound     bool     `json:"dont_round"`
}

// Encoding is the presentation contract handed to the report renderer.
type Encoding struct {
	DisplayValue string    `json:"display_value"`
	Value        *float64  `json:"value,omitempty"`
	Intensity    float64   `json:"intensity"`
	Direction    Direction `json:"direction"`
}

// CompanyValuation is one company's ratios encoded against its bucket snapshot.
type CompanyValuation struct {
	Code      string              `json:"code"`
	Bucket    BucketKey           `json:"bucket"`
	Admitted  bool                `json:"admitted"`
	Ratios    RatioRecord         `json:"ratios"`
	Encodings map[Ratio]Encoding  `json:"encodings"`
	Snapshot  *StatSnapshot       `json:"snapshot,omitempty"`
	Extras    map[string]Encoding `json:"extras,omitempty"`
	History   *PeriodTable        `json:"history,omitempty"`
	Estimates *PeriodTable        `json:"estimates,omitempty"`
}

// PeriodTable is a company's own figures laid out by reporting period. Each
// row is scored against its own values rather than against peers.
type PeriodTable struct {
	Periods []string    `json:"periods"`
	Rows    []PeriodRow `json:"rows"`
}

type PeriodRow struct {
	Name  string     `json:"name"`
	Cells []Encoding `json:"cells"`
}

