package usecase

import (
	"context"
	"errors"

	drepo "FinPeer/internal/domain/repository"
	"FinPeer/internal/services/numeric"
)

// PriceChain asks each source in turn and returns the first usable price.
type PriceChain []drepo.PriceSource

var _ drepo.PriceSource = PriceChain(nil)

// Price returns ErrPriceUnavailable when no source has a price. Other source
// errors are skipped unless every source failed with one, in which case the
// last is returned.
func (c PriceChain) Price(ctx context.Context, code, exchange string) (float64, error) {
	var lastErr error
	for _, src := range c {
		if src == nil {
			continue
		}
		p, err := src.Price(ctx, code, exchange)
		if err == nil && p > 0 {
			return p, nil
		}
		if err != nil && !errors.Is(err, drepo.ErrPriceUnavailable) {
			lastErr = err
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	if lastErr != nil {
		return 0, lastErr
	}
	return 0, drepo.ErrPriceUnavailable
}

// resolvePrice prefers an explicit price over the chain.
func resolvePrice(ctx context.Context, src drepo.PriceSource, explicit *float64, code, exchange string) (numeric.Opt, error) {
	if explicit != nil && *explicit > 0 {
		return numeric.Some(*explicit), nil
	}
	if src == nil {
		return numeric.None, drepo.ErrPriceUnavailable
	}
	p, err := src.Price(ctx, code, exchange)
	if err != nil {
		return numeric.None, err
	}
	return numeric.Some(p), nil
}
