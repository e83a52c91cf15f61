package di

import (
	"context"
	"fmt"
	"time"

	"FinPeer/internal/domain/repository"
	"FinPeer/internal/handler/api"
	"FinPeer/internal/report"
	internalrepo "FinPeer/internal/repository"
	"FinPeer/internal/service/eodhd"
	"FinPeer/internal/service/finnhub"
	"FinPeer/internal/service/ratelimit"
	"FinPeer/internal/services/encoder"
	"FinPeer/internal/services/population"
	"FinPeer/internal/services/ratios"
	"FinPeer/internal/services/stats"
	"FinPeer/internal/usecase"
	"FinPeer/pkg/cache"
	pkgch "FinPeer/pkg/clickhouse"
	"FinPeer/pkg/config"
	xhttp "FinPeer/pkg/http"
	"FinPeer/pkg/http/middleware"
	pkgkafka "FinPeer/pkg/kafka"
	"FinPeer/pkg/logger"
	"FinPeer/pkg/metrics"
	"FinPeer/pkg/queue"
	"FinPeer/pkg/server"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates the Prometheus recorder with the Kafka and HTTP
// collectors on the same registry.
func ProvideMetrics() *metrics.Recorder {
	extra := append(pkgkafka.Collectors(), middleware.Collectors()...)
	return metrics.New(extra...)
}

// ProvideRedisCache connects to Redis when it is enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideStore selects the bucket and snapshot backend.
func ProvideStore(cfg *config.Config, rc *cache.RedisCache) (repository.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return internalrepo.NewMemoryStore(), nil
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("store: redis backend without a redis connection")
		}
		return internalrepo.NewRedisStore(rc), nil
	case "badger":
		s, err := internalrepo.NewBadgerStore(cfg.Store.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("badger store: %w", err)
		}
		return s, nil
	default:
		s, err := internalrepo.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return s, nil
	}
}

// ProvideLocker uses a Redis lock when Redis is available so that several
// processes can share a store; an in-process lock otherwise.
func ProvideLocker(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) repository.BucketLocker {
	if rc != nil {
		return internalrepo.NewCacheLocker(rc, cfg.Store.LockTTL, cfg.Store.LockRetry, log)
	}
	return population.NewLocalLocker()
}

// ProvideClickHouseClient connects when the archive is enabled; nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(fmt.Sprintf("%s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxConnections, cfg.ClickHouse.MaxConnections/2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRatioArchive creates the history tables and returns the archive.
func ProvideRatioArchive(cfg *config.Config, client *pkgch.Client) (repository.RatioArchive, error) {
	if client == nil {
		return nil, nil
	}
	archive := internalrepo.NewClickHouseArchive(client.DB(), cfg.ClickHouse.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

// ProvideKafkaProducer creates the producer when Kafka is enabled; nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRunQueue creates the Redis run queue when enabled; nil otherwise.
func ProvideRunQueue(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(log, rc.Client(), queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		Prefix:     cfg.Queue.Prefix,
	})
}

func ProvideRunJob(runner *usecase.ExchangeRunner, log *logger.Logger) *usecase.ExchangeRunJob {
	return usecase.NewExchangeRunJob(runner, log.With(logger.String("component", "run_job")))
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.SnapshotTopic)
}

// ProvideKafkaConsumer creates the fundamentals consumer when enabled; nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerLanes(cfg.Kafka.Consumer.Lanes, cfg.Kafka.Consumer.LaneBuffer),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithHook(pkgkafka.TracingHook{Log: log, Slow: 2 * time.Second})
	return consumer, nil
}

func ProvidePopulation(cfg *config.Config, store repository.Store, locker repository.BucketLocker, m *metrics.Recorder, log *logger.Logger) *population.Store {
	return population.NewStore(store,
		population.WithMinMarketCap(cfg.Valuation.MinMarketCap),
		population.WithMergeMode(population.MergeMode(cfg.Valuation.MergeMode)),
		population.WithLocker(locker),
		population.WithMetrics(m),
		population.WithLogger(log.With(logger.String("component", "population"))),
	)
}

func ProvideAggregator(cfg *config.Config, pop *population.Store, store repository.Store, archive repository.RatioArchive, m *metrics.Recorder, log *logger.Logger) *stats.Aggregator {
	opts := []stats.Option{
		stats.WithPrecision(int32(cfg.Valuation.Precision)),
		stats.WithLocker(pop.Locker()),
		stats.WithMetrics(m),
		stats.WithLogger(log.With(logger.String("component", "aggregator"))),
	}
	if archive != nil {
		opts = append(opts, stats.WithArchive(archive))
	}
	return stats.NewAggregator(pop, store, opts...)
}

func ProvideEncoder(cfg *config.Config) *encoder.Encoder {
	return encoder.New(
		encoder.WithAlphaScale(cfg.Valuation.AlphaScale),
		encoder.WithStdScaleFactor(cfg.Valuation.StdScaleFactor),
	)
}

func ProvideEngine(
	pop *population.Store,
	agg *stats.Aggregator,
	enc *encoder.Encoder,
	archive repository.RatioArchive,
	publisher repository.EventPublisher,
	m *metrics.Recorder,
	log *logger.Logger,
) *usecase.ValuationEngine {
	opts := []usecase.EngineOption{
		usecase.WithMetrics(m),
		usecase.WithLogger(log.With(logger.String("component", "engine"))),
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchive(archive))
	}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	return usecase.NewValuationEngine(ratios.NewCalculator(), pop, agg, enc, opts...)
}

// ProvideEODHD builds the fundamentals client with a memory response cache,
// layered over Redis when Redis is enabled.
func ProvideEODHD(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) *eodhd.Client {
	mem := cache.NewMemoryCache(
		cache.WithMemoryMaxSize(cfg.EODHD.CacheSize),
		cache.WithMemoryDefaultTTL(cfg.EODHD.CacheTTL),
	)
	var responses cache.Service = mem
	if rc != nil {
		responses = cache.NewLayeredCache(mem, rc)
	}
	return eodhd.New(cfg.EODHD.BaseURL, cfg.EODHD.APIKey, cfg.EODHD.Timeout,
		eodhd.WithCache(responses, cfg.EODHD.CacheTTL),
		eodhd.WithLimiter(ratelimit.New(float64(cfg.EODHD.RateLimit), cfg.EODHD.Burst)),
		eodhd.WithLogger(log.With(logger.String("component", "eodhd"))),
	)
}

// ProvidePriceFeed creates the Finnhub trade feed when enabled; nil otherwise.
func ProvidePriceFeed(cfg *config.Config, log *logger.Logger) *finnhub.PriceFeed {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	return finnhub.NewPriceFeed(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		cfg.Finnhub.Symbols,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		cfg.Finnhub.MaxPriceAge,
		log.With(logger.String("component", "finnhub")),
	)
}

// ProvidePrices prefers a live trade and falls back to the EODHD close.
func ProvidePrices(feed *finnhub.PriceFeed, eod *eodhd.Client) repository.PriceSource {
	chain := usecase.PriceChain{}
	if feed != nil {
		chain = append(chain, feed)
	}
	return append(chain, eod)
}

func ProvideRenderer(cfg *config.Config) *report.Renderer {
	return report.NewRenderer(cfg.Report.Dir)
}

func ProvideExchangeRunner(
	cfg *config.Config,
	eod *eodhd.Client,
	prices repository.PriceSource,
	engine *usecase.ValuationEngine,
	renderer *report.Renderer,
	log *logger.Logger,
) *usecase.ExchangeRunner {
	opts := []usecase.RunnerOption{
		usecase.WithWorkers(cfg.Valuation.Workers),
		usecase.WithExcluded(cfg.Valuation.ExcludedCodes...),
		usecase.WithRunnerLogger(log.With(logger.String("component", "runner"))),
	}
	if cfg.Report.Enabled {
		opts = append(opts, usecase.WithReports(renderer))
	}
	return usecase.NewExchangeRunner(eod, prices, engine, opts...)
}

func ProvideFundamentalsHandler(
	cfg *config.Config,
	engine *usecase.ValuationEngine,
	prices repository.PriceSource,
	renderer *report.Renderer,
	m *metrics.Recorder,
	log *logger.Logger,
) *usecase.FundamentalsHandler {
	var sink usecase.ReportSink
	if cfg.Report.Enabled {
		sink = renderer
	}
	return usecase.NewFundamentalsHandler(cfg.Kafka.FundamentalTopic, engine, prices, sink, m,
		log.With(logger.String("component", "fundamentals_handler")))
}

func ProvideHTTPHandler(
	log *logger.Logger,
	engine *usecase.ValuationEngine,
	ingest *usecase.FundamentalsHandler,
	store repository.Store,
	renderer *report.Renderer,
	runs *queue.RedisQueue,
) *api.ValuationEchoHandler {
	h := api.NewValuationEchoHandler(log, engine, ingest, store, renderer)
	if runs != nil {
		h.SetRunQueue(runs)
	}
	return h
}

// ProvideHTTPServer builds the echo server exposing the API and metrics.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.ValuationEchoHandler, m *metrics.Recorder) *xhttp.Server {
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Server.MetricsPath, m.Handler()),
	)
}

// ProvideApp assembles the application and the resources it must release.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	store repository.Store,
	engine *usecase.ValuationEngine,
	runner *usecase.ExchangeRunner,
	handler *usecase.FundamentalsHandler,
	consumer *pkgkafka.Consumer,
	feed *finnhub.PriceFeed,
	runs *queue.RedisQueue,
	runJob *usecase.ExchangeRunJob,
	httpServer *xhttp.Server,
	archive repository.RatioArchive,
	publisher repository.EventPublisher,
	chClient *pkgch.Client,
	rc *cache.RedisCache,
) *server.App {
	app := server.New(cfg, log, store, engine, runner, httpServer)
	if consumer != nil {
		app.SetConsumer(consumer, handler)
	}
	if feed != nil {
		app.SetPriceFeed(feed)
	}
	if runs != nil {
		app.SetRunQueue(runs, runJob)
	}
	if ch, ok := archive.(*internalrepo.ClickHouseArchive); ok {
		app.SetHistory(ch)
	}
	// release order: publisher flushes before the stores close
	if publisher != nil {
		app.AddCloser("kafka publisher", publisher.Close)
	}
	if archive != nil {
		app.AddCloser("ratio archive", archive.Close)
	}
	if chClient != nil {
		app.AddCloser("clickhouse", chClient.Close)
	}
	app.AddCloser("store", store.Close)
	if rc != nil {
		app.AddCloser("redis", rc.Close)
	}
	return app
}
