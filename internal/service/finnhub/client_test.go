package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	drepo "FinPeer/internal/domain/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", Symbol("AAPL", "US"))
	assert.Equal(t, "BHP.AU", Symbol("BHP", "AU"))
}

func TestApplyKeepsNewestTrade(t *testing.T) {
	now := time.UnixMilli(2_000)
	f := NewPriceFeed("k", "ws://x", nil, time.Second, 0, time.Minute, nil)
	f.now = func() time.Time { return now }

	f.apply([]byte(`{"type":"trade","data":[{"s":"AAPL","p":190,"t":2000},{"s":"AAPL","p":185,"t":1000}]}`))
	f.apply([]byte(`{"type":"ping"}`))
	f.apply([]byte(`garbage`))

	p, err := f.Price(context.Background(), "AAPL", "US")
	require.NoError(t, err)
	assert.Equal(t, 190.0, p)

	_, err = f.Price(context.Background(), "MSFT", "US")
	assert.ErrorIs(t, err, drepo.ErrPriceUnavailable)

	now = now.Add(2 * time.Minute)
	_, err = f.Price(context.Background(), "AAPL", "US")
	assert.ErrorIs(t, err, drepo.ErrPriceUnavailable)
}

func TestRunReadsStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		ms := time.Now().UnixMilli()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"trade","data":[{"s":"`+sub["symbol"]+`","p":42.5,"t":`+strconv.FormatInt(ms, 10)+`}]}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	f := NewPriceFeed("k", url, []string{"AAPL"}, 10*time.Millisecond, 0, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(ctx) }()

	require.Eventually(t, func() bool {
		p, err := f.Price(context.Background(), "AAPL", "US")
		return err == nil && p == 42.5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
