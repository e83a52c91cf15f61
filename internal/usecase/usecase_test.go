package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/internal/repository"
	"FinPeer/internal/services/encoder"
	"FinPeer/internal/services/numeric"
	"FinPeer/internal/services/population"
	"FinPeer/internal/services/ratios"
	"FinPeer/internal/services/stats"
	pkgkafka "FinPeer/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var techUS = models.BucketKey{Exchange: "US", Industry: "Information_Technology"}

// companyJSON describes a 10M share company; with a price of 100 its market
// cap is 1000 and its trailing P/E is 1000 / netIncome (both in millions).
func companyJSON(code, typ string, netIncome float64) string {
	return fmt.Sprintf(`{
  "General": {"Code": %q, "Type": %q, "Exchange": "US", "GicSector": "Information Technology"},
  "Financials": {
    "Income_Statement": {"yearly": {"2023-12-31": {"date": "2023-12-31", "netIncome": "%.0f"}}},
    "Balance_Sheet": {"yearly": {"2023-12-31": {"commonStockSharesOutstanding": "10000000"}}}
  }
}`, code, typ, netIncome)
}

func company(t *testing.T, code string, netIncome float64) *models.FundamentalSnapshot {
	t.Helper()
	var f models.FundamentalSnapshot
	require.NoError(t, json.Unmarshal([]byte(companyJSON(code, models.CommonStock, netIncome)), &f))
	return &f
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.SnapshotUpdated
	err    error
}

func (p *fakePublisher) PublishSnapshotUpdated(_ context.Context, ev *models.SnapshotUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeSource struct {
	symbols []models.Symbol
	docs    map[string]string
}

func (s *fakeSource) Symbols(context.Context, string) ([]models.Symbol, error) {
	if s.symbols == nil {
		return nil, errors.New("listing down")
	}
	return s.symbols, nil
}

func (s *fakeSource) Fundamentals(_ context.Context, code, _ string) (*models.FundamentalSnapshot, error) {
	doc, ok := s.docs[code]
	if !ok {
		return nil, fmt.Errorf("no fundamentals for %s", code)
	}
	var f models.FundamentalSnapshot
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

type priceFunc func(code string) (float64, error)

func (f priceFunc) Price(_ context.Context, code, _ string) (float64, error) { return f(code) }

func fixedPrice(p float64) drepo.PriceSource {
	return priceFunc(func(string) (float64, error) { return p, nil })
}

type recordingSink struct {
	mu    sync.Mutex
	codes []string
}

func (s *recordingSink) Render(v *models.CompanyValuation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, v.Code)
	return "/tmp/" + v.Code + ".html", nil
}

func newEngine(store *repository.MemoryStore, opts ...EngineOption) *ValuationEngine {
	pop := population.NewStore(store)
	agg := stats.NewAggregator(pop, store)
	return NewValuationEngine(ratios.NewCalculator(), pop, agg, encoder.New(), opts...)
}

func TestProcessTwoCompanyBucket(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	engine := newEngine(repository.NewMemoryStore(), WithPublisher(pub))

	a, err := engine.Process(ctx, "A", "US", company(t, "A", 100e6), numeric.Some(100))
	require.NoError(t, err)
	assert.True(t, a.Admitted)
	assert.Equal(t, techUS, a.Bucket)
	assert.InDelta(t, 10, a.Ratios[models.RatioTrailingPE], 1e-9)

	b, err := engine.Process(ctx, "B", "US", company(t, "B", 50e6), numeric.Some(100))
	require.NoError(t, err)
	assert.InDelta(t, 20, b.Ratios[models.RatioTrailingPE], 1e-9)

	median, mad := b.Snapshot.Lookup(models.RatioTrailingPE)
	assert.Equal(t, numeric.Some(15), median)
	assert.Equal(t, numeric.Some(5), mad)

	pe := b.Encodings[models.RatioTrailingPE]
	assert.Equal(t, models.DirectionUnfavorable, pe.Direction)
	assert.InDelta(t, 1.0/6, pe.Intensity, 1e-9)
	assert.Equal(t, "20.00", pe.DisplayValue)

	again, err := engine.Valuation(ctx, techUS, "A")
	require.NoError(t, err)
	pe = again.Encodings[models.RatioTrailingPE]
	assert.Equal(t, models.DirectionFavorable, pe.Direction)
	assert.InDelta(t, 1.0/6, pe.Intensity, 1e-9)

	require.Len(t, pub.events, 2)
	assert.Equal(t, "B", pub.events[1].Code)
	assert.Equal(t, 2, pub.events[1].Companies)
	assert.NotEmpty(t, pub.events[1].ID)
	assert.NotEqual(t, pub.events[0].ID, pub.events[1].ID)
}

func TestProcessRejectedCompanyStillEncoded(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	engine := newEngine(repository.NewMemoryStore(), WithPublisher(pub))

	_, err := engine.Process(ctx, "A", "US", company(t, "A", 100e6), numeric.Some(100))
	require.NoError(t, err)

	// market cap 10M * 1 = 10, below the gate
	tiny, err := engine.Process(ctx, "TINY", "US", company(t, "TINY", 1e6), numeric.Some(1))
	require.NoError(t, err)
	assert.False(t, tiny.Admitted)
	assert.Len(t, tiny.Encodings, len(models.AllRatios))
	assert.Equal(t, models.DirectionNeutral, tiny.Encodings[models.RatioTrailingPE].Direction)

	entries, err := engine.Companies(ctx, techUS)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].Code)
	assert.Len(t, pub.events, 1)
}

func TestProcessWithoutPeersIsNeutral(t *testing.T) {
	engine := newEngine(repository.NewMemoryStore())
	v, err := engine.Process(context.Background(), "A", "US", company(t, "A", 100e6), numeric.Some(100))
	require.NoError(t, err)
	for name, enc := range v.Encodings {
		if enc.Direction == models.DirectionNeutral {
			continue
		}
		t.Errorf("%s should be neutral with a single company, got %s", name, enc.Direction)
	}
	assert.Contains(t, v.Extras, encoder.LeverageLight)

	require.NotNil(t, v.History)
	assert.Equal(t, []string{"2023-12-31"}, v.History.Periods)
	assert.Nil(t, v.Estimates)

	again, err := engine.Valuation(context.Background(), techUS, "A")
	require.NoError(t, err)
	assert.Nil(t, again.History)
}

func TestProcessCorruptBucketAborts(t *testing.T) {
	store := repository.NewMemoryStore()
	store.PutRaw(techUS, []byte("{not json"))
	engine := newEngine(store)

	_, err := engine.Process(context.Background(), "A", "US", company(t, "A", 100e6), numeric.Some(100))
	require.Error(t, err)
	assert.True(t, drepo.IsCorrupt(err))
}

func TestProcessPublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	engine := newEngine(repository.NewMemoryStore(), WithPublisher(pub))
	v, err := engine.Process(context.Background(), "A", "US", company(t, "A", 100e6), numeric.Some(100))
	require.NoError(t, err)
	assert.True(t, v.Admitted)
}

func TestValuationUnknownCompany(t *testing.T) {
	engine := newEngine(repository.NewMemoryStore())
	_, err := engine.Valuation(context.Background(), techUS, "NOPE")
	assert.ErrorIs(t, err, ErrCompanyNotFound)

	_, err = engine.Valuation(context.Background(), models.BucketKey{Exchange: "US"}, "A")
	assert.Error(t, err)
}

func TestPriceChain(t *testing.T) {
	ctx := context.Background()
	unavailable := priceFunc(func(string) (float64, error) { return 0, drepo.ErrPriceUnavailable })
	broken := priceFunc(func(string) (float64, error) { return 0, errors.New("timeout") })

	p, err := PriceChain{unavailable, fixedPrice(12.5)}.Price(ctx, "A", "US")
	require.NoError(t, err)
	assert.Equal(t, 12.5, p)

	_, err = PriceChain{unavailable, nil}.Price(ctx, "A", "US")
	assert.ErrorIs(t, err, drepo.ErrPriceUnavailable)

	_, err = PriceChain{broken, unavailable}.Price(ctx, "A", "US")
	assert.EqualError(t, err, "timeout")
}

func TestExchangeRunner(t *testing.T) {
	src := &fakeSource{
		symbols: []models.Symbol{
			{Code: "A", Type: models.CommonStock},
			{Code: "B", Type: models.CommonStock},
			{Code: "ETF1", Type: "ETF"},
			{Code: "LGI", Type: models.CommonStock},
			{Code: "PREF", Type: models.CommonStock},
			{Code: "GONE", Type: models.CommonStock},
		},
		docs: map[string]string{
			"A":    companyJSON("A", models.CommonStock, 100e6),
			"B":    companyJSON("B", models.CommonStock, 50e6),
			"LGI":  companyJSON("LGI", models.CommonStock, 50e6),
			"PREF": companyJSON("PREF", "Preferred Share", 50e6),
		},
	}
	sink := &recordingSink{}
	runner := NewExchangeRunner(src, fixedPrice(100), newEngine(repository.NewMemoryStore()),
		WithWorkers(2), WithExcluded("lgi"), WithReports(sink))

	sum, err := runner.Run(context.Background(), "US")
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 6, sum.Listed)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.Admitted)
	assert.Equal(t, 1, sum.Failed)
	assert.ElementsMatch(t, []string{"A", "B"}, sink.codes)
}

func TestExchangeRunnerListingFailure(t *testing.T) {
	runner := NewExchangeRunner(&fakeSource{}, nil, newEngine(repository.NewMemoryStore()))
	_, err := runner.Run(context.Background(), "US")
	assert.Error(t, err)
}

func TestTickerWithoutPriceStillValues(t *testing.T) {
	src := &fakeSource{docs: map[string]string{"A": companyJSON("A", models.CommonStock, 100e6)}}
	runner := NewExchangeRunner(src, PriceChain{}, newEngine(repository.NewMemoryStore()))

	v, err := runner.Ticker(context.Background(), "A", "US")
	require.NoError(t, err)
	_, hasPrice := v.Ratios[models.RatioPrice]
	assert.False(t, hasPrice)
	assert.False(t, v.Admitted)
}

func TestFundamentalsHandler(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(repository.NewMemoryStore())
	h := NewFundamentalsHandler("fundamentals", engine, fixedPrice(100), nil, nil, nil)
	assert.Equal(t, "fundamentals", h.Topic())

	payload := fmt.Sprintf(`{"exchange": "US", "fundamentals": %s}`, companyJSON("A", models.CommonStock, 100e6))
	require.NoError(t, h.Handle(ctx, []byte("A"), []byte(payload)))

	entries, err := engine.Companies(ctx, techUS)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].Code)
	assert.InDelta(t, 100, entries[0].Ratios[models.RatioPrice], 1e-9)

	err = h.Handle(ctx, nil, []byte("{garbage"))
	require.Error(t, err)
	assert.True(t, pkgkafka.IsPermanent(err))

	err = h.Handle(ctx, nil, []byte(`{"exchange": "US"}`))
	require.Error(t, err)
	assert.True(t, pkgkafka.IsPermanent(err))
}

func TestIngestExplicitPriceWins(t *testing.T) {
	engine := newEngine(repository.NewMemoryStore())
	h := NewFundamentalsHandler("fundamentals", engine, fixedPrice(1), nil, nil, nil)

	price := 100.0
	v, err := h.Ingest(context.Background(), &models.FundamentalsMessage{
		Code:         "A",
		Exchange:     "US",
		Price:        &price,
		Fundamentals: company(t, "A", 100e6),
	})
	require.NoError(t, err)
	assert.True(t, v.Admitted)
	assert.InDelta(t, 1000, v.Ratios[models.RatioMarketCap], 1e-9)
}

func TestExchangeRunJob(t *testing.T) {
	src := &fakeSource{
		symbols: []models.Symbol{{Code: "A", Type: models.CommonStock}},
		docs:    map[string]string{"A": companyJSON("A", models.CommonStock, 100e6)},
	}
	engine := newEngine(repository.NewMemoryStore())
	job := NewExchangeRunJob(NewExchangeRunner(src, fixedPrice(100), engine), nil)
	assert.Equal(t, RunJobType, job.Type())

	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`{"exchange": " us "}`)))
	entries, err := engine.Companies(context.Background(), techUS)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`{"exchange": ""}`)))
	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`nope`)))
}
