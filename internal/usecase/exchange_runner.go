package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNotCommonStock marks a ticker whose fundamentals describe another
// security type.
var ErrNotCommonStock = errors.New("not a common stock")

// ReportSink receives every valuation produced by a run.
type ReportSink interface {
	Render(v *models.CompanyValuation) (string, error)
}

// RunSummary counts the outcome of one exchange run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Exchange  string        `json:"exchange"`
	Listed    int           `json:"listed"`
	Skipped   int           `json:"skipped"`
	Processed int           `json:"processed"`
	Admitted  int           `json:"admitted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// ExchangeRunner values every common stock of an exchange.
type ExchangeRunner struct {
	source   drepo.FundamentalsSource
	prices   drepo.PriceSource
	engine   *ValuationEngine
	reports  ReportSink
	excluded map[string]struct{}
	workers  int
	log      *logger.Logger
}

type RunnerOption func(*ExchangeRunner)

// WithWorkers bounds the number of companies valued concurrently.
func WithWorkers(n int) RunnerOption {
	return func(r *ExchangeRunner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithExcluded skips the given ticker codes.
func WithExcluded(codes ...string) RunnerOption {
	return func(r *ExchangeRunner) {
		for _, c := range codes {
			r.excluded[strings.ToUpper(c)] = struct{}{}
		}
	}
}

func WithReports(s ReportSink) RunnerOption {
	return func(r *ExchangeRunner) { r.reports = s }
}

func WithRunnerLogger(l *logger.Logger) RunnerOption {
	return func(r *ExchangeRunner) { r.log = l }
}

func NewExchangeRunner(source drepo.FundamentalsSource, prices drepo.PriceSource, engine *ValuationEngine, opts ...RunnerOption) *ExchangeRunner {
	r := &ExchangeRunner{
		source:   source,
		prices:   prices,
		engine:   engine,
		excluded: map[string]struct{}{},
		workers:  1,
		log:      logger.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run lists the exchange and values each eligible symbol. A failing company
// is logged and counted; only a listing failure or cancellation ends the run
// with an error.
func (r *ExchangeRunner) Run(ctx context.Context, exchange string) (*RunSummary, error) {
	start := time.Now()
	sum := &RunSummary{RunID: uuid.NewString(), Exchange: exchange}
	log := r.log.With(logger.String("run_id", sum.RunID), logger.String("exchange", exchange))

	symbols, err := r.source.Symbols(ctx, exchange)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", exchange, err)
	}
	sum.Listed = len(symbols)

	var processed, admitted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, sym := range symbols {
		if !r.eligible(sym) {
			sum.Skipped++
			continue
		}
		code := sym.Code
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			v, err := r.Ticker(gctx, code, exchange)
			switch {
			case errors.Is(err, ErrNotCommonStock):
				log.Debug("skipping non common stock", logger.String("code", code))
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				failed.Add(1)
				log.Error("company failed", logger.String("code", code), logger.Error(err))
				return nil
			}
			processed.Add(1)
			if v.Admitted {
				admitted.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	sum.Processed = int(processed.Load())
	sum.Admitted = int(admitted.Load())
	sum.Failed = int(failed.Load())
	sum.Duration = time.Since(start)
	log.Info("exchange run finished",
		logger.Int("listed", sum.Listed),
		logger.Int("processed", sum.Processed),
		logger.Int("admitted", sum.Admitted),
		logger.Int("failed", sum.Failed),
		logger.Duration("duration", sum.Duration),
	)
	return sum, err
}

// Ticker fetches, prices, values and renders one company.
func (r *ExchangeRunner) Ticker(ctx context.Context, code, exchange string) (*models.CompanyValuation, error) {
	f, err := r.source.Fundamentals(ctx, code, exchange)
	if err != nil {
		return nil, fmt.Errorf("fundamentals %s.%s: %w", code, exchange, err)
	}
	if !f.IsCommonStock() {
		return nil, fmt.Errorf("%s.%s is %q: %w", code, exchange, f.General.Type, ErrNotCommonStock)
	}

	price, err := resolvePrice(ctx, r.prices, nil, code, exchange)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Warn("price unavailable", logger.String("code", code), logger.Error(err))
	}

	v, err := r.engine.Process(ctx, code, exchange, f, price)
	if err != nil {
		return nil, err
	}
	if r.reports != nil {
		path, err := r.reports.Render(v)
		if err != nil {
			r.log.Warn("render report failed", logger.String("code", code), logger.Error(err))
		} else {
			r.log.Debug("report written", logger.String("code", code), logger.String("path", path))
		}
	}
	return v, nil
}

func (r *ExchangeRunner) eligible(s models.Symbol) bool {
	if s.Code == "" {
		return false
	}
	if s.Type != "" && s.Type != models.CommonStock {
		return false
	}
	_, skip := r.excluded[strings.ToUpper(s.Code)]
	return !skip
}
