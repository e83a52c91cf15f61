// Package eodhd is the data-retrieval boundary: fundamentals, close prices
// and exchange listings from the EODHD REST API.
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/internal/service/ratelimit"
	"FinPeer/internal/services/numeric"
	"FinPeer/pkg/cache"
	xhttp "FinPeer/pkg/http"
	"FinPeer/pkg/logger"
)

// ErrNotFound is returned when EODHD does not know the ticker or exchange.
var ErrNotFound = errors.New("eodhd: not found")

const limiterKey = "eodhd"

// Client implements drepo.FundamentalsSource and drepo.PriceSource.
type Client struct {
	http     *xhttp.Client
	cache    cache.Service
	cacheTTL time.Duration
	priceTTL time.Duration
	limiter  *ratelimit.Limiter
	log      *logger.Logger
}

var (
	_ drepo.FundamentalsSource = (*Client)(nil)
	_ drepo.PriceSource        = (*Client)(nil)
)

type Option func(*Client)

// WithCache caches response bodies. Fundamentals and listings use ttl, prices
// use a tenth of it.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
		cl.priceTTL = ttl / 10
	}
}

func WithLimiter(l *ratelimit.Limiter) Option { return func(c *Client) { c.limiter = l } }

func WithLogger(l *logger.Logger) Option { return func(c *Client) { c.log = l } }

// New builds a client for baseURL (e.g. https://eodhd.com/api).
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http: xhttp.NewClient(
			xhttp.WithBaseURL(baseURL),
			xhttp.WithTimeout(timeout),
			xhttp.WithDefaultQuery("api_token", apiKey),
			xhttp.WithDefaultQuery("fmt", "json"),
		),
		log: logger.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func ticker(code, exchange string) string { return code + "." + exchange }

func (c *Client) fetch(ctx context.Context, path string, ttl time.Duration) ([]byte, error) {
	load := func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, limiterKey); err != nil {
				return nil, err
			}
		}
		start := time.Now()
		body, err := c.http.Get(ctx, &xhttp.RequestOptions{Path: path})
		if xhttp.IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("eodhd %s: %w", path, err)
		}
		c.log.Debug("eodhd request", logger.String("path", path), logger.Duration("duration_ms", time.Since(start)))
		return body, nil
	}
	if c.cache == nil || ttl <= 0 {
		return load(ctx)
	}
	return cache.GetOrLoad(ctx, c.cache, cache.GenerateKeyWithParams("eodhd", path), ttl, load)
}

// Fundamentals returns the fundamentals document of code on exchange.
func (c *Client) Fundamentals(ctx context.Context, code, exchange string) (*models.FundamentalSnapshot, error) {
	body, err := c.fetch(ctx, "fundamentals/"+ticker(code, exchange), c.cacheTTL)
	if err != nil {
		return nil, err
	}
	var f models.FundamentalSnapshot
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("decode fundamentals %s: %w", ticker(code, exchange), err)
	}
	return &f, nil
}

type realTimeQuote struct {
	Code  string      `json:"code"`
	Close numeric.Opt `json:"close"`
}

// Price returns the latest close. Providers answer "NA" for untraded tickers,
// which maps to drepo.ErrPriceUnavailable.
func (c *Client) Price(ctx context.Context, code, exchange string) (float64, error) {
	body, err := c.fetch(ctx, "real-time/"+ticker(code, exchange), c.priceTTL)
	if err != nil {
		return 0, err
	}
	var q realTimeQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return 0, fmt.Errorf("decode quote %s: %w", ticker(code, exchange), err)
	}
	p, ok := q.Close.NonZero().Get()
	if !ok {
		return 0, fmt.Errorf("%s: %w", ticker(code, exchange), drepo.ErrPriceUnavailable)
	}
	return p, nil
}

// Symbols lists the tickers of an exchange.
func (c *Client) Symbols(ctx context.Context, exchange string) ([]models.Symbol, error) {
	body, err := c.fetch(ctx, "exchange-symbol-list/"+exchange, c.cacheTTL)
	if err != nil {
		return nil, err
	}
	var out []models.Symbol
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode symbols of %s: %w", exchange, err)
	}
	return out, nil
}
