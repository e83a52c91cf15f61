package models

// Requests for valuation HTTP endpoints.

type ExchangeRequest struct {
	Exchange string `param:"exchange" json:"exchange" validate:"required,segment"`
}

type BucketRequest struct {
	Exchange string `param:"exchange" json:"exchange" validate:"required,segment"`
	Industry string `param:"industry" json:"industry" validate:"required,segment"`
}

type CompanyRequest struct {
	Exchange string `param:"exchange" json:"exchange" validate:"required,segment"`
	Industry string `param:"industry" json:"industry" validate:"required,segment"`
	Code     string `param:"code" json:"code" validate:"required,ticker"`
}

type EncodeRequest struct {
	Value         *float64 `json:"value"`
	Median        *float64 `json:"median"`
	MAD           *float64 `json:"mad" validate:"omitempty,gte=0"`
	Polarity      Polarity `json:"polarity" default:"small" validate:"oneof=large small"`
	RedIfNegative bool     `json:"red_if_negative"`
	Percent       bool     `json:"percent"`
	DontRound     bool     `json:"dont_round"`
}
