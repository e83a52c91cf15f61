package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a keyed token bucket shared by every caller of one upstream.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
	now   func() time.Time
}

// New returns a limiter refilling perSecond tokens per second up to burst.
// A non-positive rate never refills once the burst is spent.
func New(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if perSecond < 0 {
		perSecond = 0
	}
	return &Limiter{
		m:     make(map[string]*rate.Limiter),
		limit: rate.Limit(perSecond),
		burst: burst,
		now:   time.Now,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl, ok := l.m[key]
	if !ok {
		rl = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = rl
	}
	return rl
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).AllowN(l.now(), 1)
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}
