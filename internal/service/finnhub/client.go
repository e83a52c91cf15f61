// Package finnhub keeps the last traded price of subscribed tickers from the
// Finnhub trade stream.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	drepo "FinPeer/internal/domain/repository"
	"FinPeer/pkg/logger"

	"github.com/gorilla/websocket"
)

type lastTrade struct {
	price float64
	at    time.Time
}

// PriceFeed implements drepo.PriceSource over the trade stream. Prices older
// than maxAge are reported unavailable so callers fall back to the close.
type PriceFeed struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	maxAge         time.Duration
	log            *logger.Logger
	now            func() time.Time

	mu     sync.RWMutex
	prices map[string]lastTrade
	conn   *websocket.Conn
}

var _ drepo.PriceSource = (*PriceFeed)(nil)

func NewPriceFeed(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval, maxAge time.Duration, log *logger.Logger) *PriceFeed {
	if log == nil {
		log = logger.Nop()
	}
	return &PriceFeed{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		maxAge:         maxAge,
		log:            log.With(logger.String("component", "finnhub")),
		now:            time.Now,
		prices:         make(map[string]lastTrade),
	}
}

// Symbol maps an exchange ticker to the Finnhub symbol: US listings trade
// under the bare code, others as CODE.EXCHANGE.
func Symbol(code, exchange string) string {
	if exchange == "" || strings.EqualFold(exchange, "US") {
		return code
	}
	return code + "." + exchange
}

// Price returns the last traded price of code if it is fresh.
func (f *PriceFeed) Price(_ context.Context, code, exchange string) (float64, error) {
	f.mu.RLock()
	t, ok := f.prices[Symbol(code, exchange)]
	f.mu.RUnlock()
	if !ok || t.price <= 0 || (f.maxAge > 0 && f.now().Sub(t.at) > f.maxAge) {
		return 0, drepo.ErrPriceUnavailable
	}
	return t.price, nil
}

// Run connects, subscribes and reads trades until ctx is done, reconnecting
// after every failure.
func (f *PriceFeed) Run(ctx context.Context) error {
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn("trade stream interrupted", logger.Error(err), logger.Duration("retry_in", f.reconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *PriceFeed) session(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", f.websocketURL, f.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer f.close()

	for _, s := range f.symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	f.log.Info("trade stream connected", logger.Int("symbols", len(f.symbols)))

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		f.apply(b)
	}
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// apply records the trades of one frame; non-trade frames are ignored.
func (f *PriceFeed) apply(frame []byte) {
	var m fhMessage
	if err := json.Unmarshal(frame, &m); err != nil || m.Type != "trade" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range m.Data {
		at := time.UnixMilli(d.T)
		if cur, ok := f.prices[d.S]; ok && cur.at.After(at) {
			continue
		}
		f.prices[d.S] = lastTrade{price: d.P, at: at}
	}
}

func (f *PriceFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	if f.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (f *PriceFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}
