package models

import "time"

// SnapshotUpdated is published after a bucket snapshot has been regenerated.
type SnapshotUpdated struct {
	ID        string        `json:"id"`
	Bucket    BucketKey     `json:"bucket"`
	Code      string        `json:"code,omitempty"`
	Companies int           `json:"companies"`
	Snapshot  *StatSnapshot `json:"snapshot"`
	At        time.Time     `json:"at"`
}

// FundamentalsMessage is the ingestion payload carried on the fundamentals topic
// and accepted by the HTTP ingest endpoint.
type FundamentalsMessage struct {
	Code         string               `json:"code" validate:"required"`
	Exchange     string               `json:"exchange" validate:"required"`
	Price        *float64             `json:"price"`
	Fundamentals *FundamentalSnapshot `json:"fundamentals" validate:"required"`
}
