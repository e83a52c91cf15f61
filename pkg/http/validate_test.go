package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type companyParams struct {
	Exchange string `param:"exchange" validate:"required,segment"`
	Code     string `param:"code" validate:"required,ticker"`
	Limit    int    `query:"limit" default:"20" validate:"lte=100"`
}

func bindParams(t *testing.T, target, exchange, code string) (*companyParams, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("exchange", "code")
	c.SetParamValues(exchange, code)

	var p companyParams
	errs := ReadAndValidateRequest(c, &p)
	return &p, errs
}

func TestReadAndValidateRequest(t *testing.T) {
	p, errs := bindParams(t, "/", "US", "BRK-B")
	require.Empty(t, errs)
	assert.Equal(t, "US", p.Exchange)
	assert.Equal(t, 20, p.Limit)

	_, errs = bindParams(t, "/", "US", "AAPL.US")
	assert.Empty(t, errs)
}

func TestReadAndValidateRequestRejects(t *testing.T) {
	cases := []struct {
		name     string
		target   string
		exchange string
		code     string
		field    string
		errCode  string
	}{
		{"missing code", "/", "US", "", "code", "ERR_REQUIRED"},
		{"bad ticker", "/", "US", "A B", "code", "ERR_TICKER"},
		{"traversal", "/", "..", "AAPL", "exchange", "ERR_SEGMENT"},
		{"separator", "/", "US\\x", "AAPL", "exchange", "ERR_SEGMENT"},
		{"limit", "/?limit=500", "US", "AAPL", "limit", "ERR_LTE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := bindParams(t, tc.target, tc.exchange, tc.code)
			require.Len(t, errs, 1)
			assert.Equal(t, tc.field, errs[0].Field)
			assert.Equal(t, tc.errCode, errs[0].Code)
			assert.NotEmpty(t, errs[0].Message)
		})
	}
}
