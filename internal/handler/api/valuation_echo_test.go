package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"FinPeer/internal/domain/models"
	"FinPeer/internal/report"
	"FinPeer/internal/repository"
	"FinPeer/internal/services/encoder"
	"FinPeer/internal/services/population"
	"FinPeer/internal/services/ratios"
	"FinPeer/internal/services/stats"
	"FinPeer/internal/usecase"
	xhttp "FinPeer/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const companyDoc = `{
  "General": {"Code": %q, "Type": "Common Stock", "Exchange": "US", "GicSector": "Information Technology"},
  "Financials": {
    "Income_Statement": {"yearly": {"2023-12-31": {"date": "2023-12-31", "netIncome": "%d"}}},
    "Balance_Sheet": {"yearly": {"2023-12-31": {"commonStockSharesOutstanding": "10000000"}}}
  }
}`

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type fixture struct {
	echo  *echo.Echo
	store *repository.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	pop := population.NewStore(store)
	engine := usecase.NewValuationEngine(ratios.NewCalculator(), pop, stats.NewAggregator(pop, store), encoder.New())
	ingest := usecase.NewFundamentalsHandler("fundamentals", engine, nil, nil, nil, nil)
	h := NewValuationEchoHandler(nil, engine, ingest, store, report.NewRenderer(t.TempDir()))
	srv := xhttp.NewServer(nil, []xhttp.Handler{h})
	return &fixture{echo: srv.Echo(), store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (f *fixture) ingest(t *testing.T, code string, netIncome int) {
	t.Helper()
	body := fmt.Sprintf(`{"code": %q, "exchange": "US", "price": 100, "fundamentals": `+companyDoc+`}`, code, code, netIncome)
	rec, _ := f.do(t, http.MethodPost, "/api/companies", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestIngestAndQuery(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "A", 100000000)
	f.ingest(t, "B", 50000000)

	rec, env := f.do(t, http.MethodGet, "/api/buckets/US/Information_Technology/companies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.CompanyEntry `json:"rows"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Total)

	rec, env = f.do(t, http.MethodGet, "/api/buckets/US/Information_Technology/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.StatSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 15.0, snap.Median[models.RatioTrailingPE])
	assert.Equal(t, 5.0, snap.MAD[models.RatioTrailingPE])

	rec, env = f.do(t, http.MethodGet, "/api/buckets/US/Information_Technology/companies/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v models.CompanyValuation
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, models.DirectionFavorable, v.Encodings[models.RatioTrailingPE].Direction)

	rec, _ = f.do(t, http.MethodGet, "/api/buckets/US/Information_Technology/companies/A/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>A</h1>")

	rec, env = f.do(t, http.MethodGet, "/api/exchanges/US/buckets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "Information_Technology")
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/buckets/US/Energy/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/buckets/US/Energy/companies", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.ingest(t, "A", 100000000)
	rec, _ = f.do(t, http.MethodGet, "/api/buckets/US/Information_Technology/companies/ZZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorruptBucketIsServerError(t *testing.T) {
	f := newFixture(t)
	f.store.PutRaw(models.BucketKey{Exchange: "US", Industry: "Energy"}, []byte("{oops"))

	rec, _ := f.do(t, http.MethodGet, "/api/buckets/US/Energy/companies", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_CORRUPT_DATA")
}

func TestEncodeEndpoint(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/encode", `{"value": 20, "median": 15, "mad": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var enc models.Encoding
	require.NoError(t, json.Unmarshal(env.Data, &enc))
	assert.Equal(t, models.DirectionUnfavorable, enc.Direction)
	assert.InDelta(t, 1.0/6, enc.Intensity, 1e-9)

	rec, _ = f.do(t, http.MethodPost, "/api/encode", `{"value": 20, "polarity": "sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/encode", `{"median": 1, "mad": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &enc))
	assert.Equal(t, encoder.Missing, enc.DisplayValue)
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/companies", `{"exchange": "US"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"code": "ETF", "exchange": "US", "price": 10, "fundamentals": {"General": {"Type": "ETF", "Exchange": "US"}}}`
	rec, _ = f.do(t, http.MethodPost, "/api/companies", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type fakeQueue struct {
	types    []string
	payloads []interface{}
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return "job-1", nil
}

func TestEnqueueRun(t *testing.T) {
	store := repository.NewMemoryStore()
	pop := population.NewStore(store)
	engine := usecase.NewValuationEngine(ratios.NewCalculator(), pop, stats.NewAggregator(pop, store), encoder.New())
	h := NewValuationEchoHandler(nil, engine, nil, store, nil)
	q := &fakeQueue{}
	h.SetRunQueue(q)
	e := xhttp.NewServer(nil, []xhttp.Handler{h}).Echo()

	req := httptest.NewRequest(http.MethodPost, "/api/exchanges/lse/runs", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "job-1")
	assert.Equal(t, []string{usecase.RunJobType}, q.types)
	assert.Equal(t, usecase.RunRequest{Exchange: "LSE"}, q.payloads[0])
}

func TestToAppError(t *testing.T) {
	err := models.BucketKey{Exchange: "US"}.Validate()
	assert.Equal(t, http.StatusBadRequest, toAppError(err).Status)
	assert.Equal(t, http.StatusInternalServerError, toAppError(context.DeadlineExceeded).Status)
}
