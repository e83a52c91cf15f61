package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
)

// ClickHouseArchive appends admitted ratios and regenerated snapshots to
// MergeTree tables, one row per (company, ratio) and (bucket, ratio).
type ClickHouseArchive struct {
	db            *sql.DB
	ratioTable    string
	snapshotTable string
}

var _ drepo.RatioArchive = (*ClickHouseArchive)(nil)

func NewClickHouseArchive(db *sql.DB, database string) *ClickHouseArchive {
	prefix := ""
	if database != "" {
		prefix = database + "."
	}
	return &ClickHouseArchive{
		db:            db,
		ratioTable:    prefix + "ratio_history",
		snapshotTable: prefix + "snapshot_history",
	}
}

// Schema returns the DDL for the archive tables.
func (a *ClickHouseArchive) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts        DateTime64(3),
	exchange  LowCardinality(String),
	industry  LowCardinality(String),
	code      String,
	ratio     LowCardinality(String),
	value     Float64
) ENGINE = MergeTree
ORDER BY (exchange, industry, code, ratio, ts)`, a.ratioTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts        DateTime64(3),
	exchange  LowCardinality(String),
	industry  LowCardinality(String),
	ratio     LowCardinality(String),
	median    Float64,
	mad       Float64
) ENGINE = MergeTree
ORDER BY (exchange, industry, ratio, ts)`, a.snapshotTable),
	}
}

func (a *ClickHouseArchive) Init(ctx context.Context) error {
	for _, stmt := range a.Schema() {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init archive schema: %w", err)
		}
	}
	return nil
}

func (a *ClickHouseArchive) RecordRatios(ctx context.Context, key models.BucketKey, code string, rec models.RatioRecord, at time.Time) error {
	if len(rec) == 0 {
		return nil
	}
	names := sortedRatios(rec)
	values := make([]string, 0, len(names))
	args := make([]interface{}, 0, len(names)*6)
	for _, name := range names {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, at, key.Exchange, key.Industry, code, string(name), rec[name])
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, exchange, industry, code, ratio, value) VALUES %s", a.ratioTable, strings.Join(values, ","))
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert ratio history: %w", err)
	}
	return nil
}

func (a *ClickHouseArchive) RecordSnapshot(ctx context.Context, key models.BucketKey, s *models.StatSnapshot, at time.Time) error {
	if s == nil || len(s.Median) == 0 {
		return nil
	}
	names := sortedRatios(s.Median)
	values := make([]string, 0, len(names))
	args := make([]interface{}, 0, len(names)*6)
	for _, name := range names {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, at, key.Exchange, key.Industry, string(name), s.Median[name], s.MAD[name])
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, exchange, industry, ratio, median, mad) VALUES %s", a.snapshotTable, strings.Join(values, ","))
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert snapshot history: %w", err)
	}
	return nil
}

// History returns the archived values of one ratio for one company, newest first.
func (a *ClickHouseArchive) History(ctx context.Context, key models.BucketKey, code string, ratio models.Ratio, limit int) ([]HistoryPoint, error) {
	q := fmt.Sprintf("SELECT ts, value FROM %s WHERE exchange = ? AND industry = ? AND code = ? AND ratio = ? ORDER BY ts DESC LIMIT ?", a.ratioTable)
	rows, err := a.db.QueryContext(ctx, q, key.Exchange, key.Industry, code, string(ratio), limit)
	if err != nil {
		return nil, fmt.Errorf("query ratio history: %w", err)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.At, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HistoryPoint is one archived observation.
type HistoryPoint struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (a *ClickHouseArchive) Close() error { return nil }

func sortedRatios(m map[models.Ratio]float64) []models.Ratio {
	out := make([]models.Ratio, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
