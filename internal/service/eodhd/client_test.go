package eodhd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	drepo "FinPeer/internal/domain/repository"
	"FinPeer/internal/service/ratelimit"
	"FinPeer/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/fundamentals/AAPL.US", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "key", r.URL.Query().Get("api_token"))
		_, _ = w.Write([]byte(`{
			"General": {"Code": "AAPL", "Type": "Common Stock", "Exchange": "US", "GicSector": "Information Technology"},
			"Highlights": {"MarketCapitalization": "2500000000000", "DividendShare": null},
			"Financials": {"Balance_Sheet": {"yearly": []}, "Cash_Flow": [], "Income_Statement": {"yearly": {}}}
		}`))
	})
	mux.HandleFunc("/api/real-time/AAPL.US", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": "AAPL.US", "close": 189.5}`))
	})
	mux.HandleFunc("/api/real-time/DEAD.US", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": "DEAD.US", "close": "NA"}`))
	})
	mux.HandleFunc("/api/exchange-symbol-list/US", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Code":"AAPL","Name":"Apple Inc","Exchange":"US","Type":"Common Stock"},{"Code":"SPY","Type":"ETF"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFundamentals(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := New(srv.URL+"/api", "key", time.Second)

	f, err := c.Fundamentals(context.Background(), "AAPL", "US")
	require.NoError(t, err)
	assert.True(t, f.IsCommonStock())
	v, ok := f.Highlights.MarketCapitalization.Get()
	require.True(t, ok)
	assert.Equal(t, 2.5e12, v)
	assert.False(t, f.Highlights.DividendShare.Present())
	assert.Equal(t, "Information_Technology", f.BucketKey("").Industry)
}

func TestFundamentalsNotFound(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	_, err := New(srv.URL+"/api", "key", time.Second).Fundamentals(context.Background(), "NOPE", "US")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFundamentalsCached(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := New(srv.URL+"/api", "key", time.Second, WithCache(cache.NewMemoryCache(), time.Hour))

	for i := 0; i < 3; i++ {
		_, err := c.Fundamentals(context.Background(), "AAPL", "US")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestPrice(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := New(srv.URL+"/api", "key", time.Second, WithLimiter(ratelimit.New(100, 10)))

	p, err := c.Price(context.Background(), "AAPL", "US")
	require.NoError(t, err)
	assert.Equal(t, 189.5, p)

	_, err = c.Price(context.Background(), "DEAD", "US")
	assert.ErrorIs(t, err, drepo.ErrPriceUnavailable)
}

func TestSymbols(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	syms, err := New(srv.URL+"/api", "key", time.Second).Symbols(context.Background(), "US")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "AAPL", syms[0].Code)
	assert.Equal(t, "ETF", syms[1].Type)
}
