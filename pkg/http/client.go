package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientOption configures Client.
type ClientOption func(*Client)

// RequestOptions holds HTTP request parameters. Path is joined to the client
// base URL unless URL is set.
type RequestOptions struct {
	Method      string
	URL         string
	Path        string
	Headers     map[string]string
	QueryParams map[string][]string
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client is a small JSON client with a base URL and default query params.
type Client struct {
	baseURL      string
	timeout      time.Duration
	defaultQuery url.Values
	userAgent    string
	maxBody      int64
	client       *http.Client
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:      30 * time.Second,
		defaultQuery: url.Values{},
		userAgent:    "finpeer/1.0",
		maxBody:      32 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Get fetches a resource and returns the raw body of a 2xx response.
func (c *Client) Get(ctx context.Context, opts *RequestOptions) ([]byte, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// GetJSON fetches a resource and decodes it into dest.
func (c *Client) GetJSON(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	body, err := c.Get(ctx, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func (c *Client) buildRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	target := opts.URL
	if target == "" {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(opts.Path, "/")
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	q := req.URL.Query()
	for k, vs := range c.defaultQuery {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, vs := range opts.QueryParams {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithDefaultQuery adds a query parameter to every request, e.g. an API token.
func WithDefaultQuery(key, value string) ClientOption {
	return func(c *Client) { c.defaultQuery.Set(key, value) }
}

// WithHTTPClient replaces the underlying client, mostly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}
