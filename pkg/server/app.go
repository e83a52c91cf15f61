package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/internal/repository"
	"FinPeer/internal/service/finnhub"
	"FinPeer/internal/usecase"
	"FinPeer/pkg/config"
	xhttp "FinPeer/pkg/http"
	pkgkafka "FinPeer/pkg/kafka"
	applogger "FinPeer/pkg/logger"
	"FinPeer/pkg/queue"
	"FinPeer/pkg/util"
)

// ErrHistoryDisabled is returned by History when no archive is configured.
var ErrHistoryDisabled = errors.New("ratio history requires clickhouse")

type closer struct {
	name  string
	close func() error
}

// App encapsulates the application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	store      drepo.Store
	engine     *usecase.ValuationEngine
	runner     *usecase.ExchangeRunner
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	handler    pkgkafka.MessageHandler
	feed       *finnhub.PriceFeed
	history    *repository.ClickHouseArchive
	runs       *queue.RedisQueue
	runJob     queue.Job
	closers    []closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	store drepo.Store,
	engine *usecase.ValuationEngine,
	runner *usecase.ExchangeRunner,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		engine:     engine,
		runner:     runner,
		httpServer: httpServer,
	}
}

// SetConsumer enables the fundamentals consumer in Serve.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer, a.handler = c, h
}

// SetRunQueue enables queued exchange runs in Serve.
func (a *App) SetRunQueue(q *queue.RedisQueue, job queue.Job) {
	a.runs, a.runJob = q, job
}

func (a *App) SetPriceFeed(f *finnhub.PriceFeed) { a.feed = f }

func (a *App) SetHistory(h *repository.ClickHouseArchive) { a.history = h }

// AddCloser registers a resource released by Close, in registration order.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Serve runs the HTTP API, the consumer and the price feed until ctx is
// cancelled or the process receives SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.startFeed(ctx)

	if a.consumer != nil && a.handler != nil {
		if err := a.consumer.RegisterHandler(a.handler); err != nil {
			return fmt.Errorf("register handler: %w", err)
		}
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.handler.Topic()))
	}

	if a.runs != nil {
		if err := a.runs.Register(a.runJob); err != nil {
			return err
		}
		if err := a.runs.Start(ctx); err != nil {
			return fmt.Errorf("start run queue: %w", err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
	}
	a.shutdown()
	return runErr
}

// RunExchange values every listed common stock of exchange.
func (a *App) RunExchange(ctx context.Context, exchange string) (*usecase.RunSummary, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.startFeed(ctx)
	return a.runner.Run(ctx, exchange)
}

// Ticker values a single company.
func (a *App) Ticker(ctx context.Context, code, exchange string) (*models.CompanyValuation, error) {
	return a.runner.Ticker(ctx, code, exchange)
}

// Recompute regenerates the snapshot of every bucket of exchange and returns
// how many were rebuilt.
func (a *App) Recompute(ctx context.Context, exchange string) (int, error) {
	keys, err := a.store.List(ctx, exchange)
	if err != nil {
		return 0, fmt.Errorf("list buckets: %w", err)
	}
	n := 0
	for _, key := range keys {
		if _, err := a.engine.Recompute(ctx, key); err != nil {
			a.log.Error("recompute failed", applogger.String("bucket", key.String()), applogger.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// Export writes one Parquet file per bucket of exchange under dir and
// returns the written paths.
func (a *App) Export(ctx context.Context, exchange, dir string) ([]string, error) {
	keys, err := a.store.List(ctx, exchange)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	var paths []string
	for _, key := range keys {
		entries, err := a.engine.Companies(ctx, key)
		if err != nil {
			return paths, fmt.Errorf("read %s: %w", key, err)
		}
		path := filepath.Join(dir, util.SafeFileName(key.Exchange), util.SafeFileName(key.Industry)+".parquet")
		if err := repository.ExportParquet(path, key, entries); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// History returns archived values of one ratio for a company.
func (a *App) History(ctx context.Context, key models.BucketKey, code string, ratio models.Ratio, limit int) ([]repository.HistoryPoint, error) {
	if a.history == nil {
		return nil, ErrHistoryDisabled
	}
	return a.history.History(ctx, key, code, ratio, limit)
}

// Close releases every registered resource.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) startFeed(ctx context.Context) {
	if a.feed == nil {
		return
	}
	go func() {
		if err := a.feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("price feed stopped", applogger.Error(err))
		}
	}()
	a.log.Info("price feed started", applogger.Strings("symbols", a.cfg.Finnhub.Symbols))
}

// shutdown stops the HTTP server and the consumer. Resources are released
// separately by Close.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.runs != nil {
		if err := a.runs.Stop(ctx); err != nil {
			a.log.Warn("run queue stop error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
