//go:build wireinject
// +build wireinject

package di

import (
	"FinPeer/pkg/config"
	"FinPeer/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRunQueue,

		// Repositories
		ProvideStore,
		ProvideLocker,
		ProvideRatioArchive,
		ProvideEventPublisher,

		// Domain services
		ProvidePopulation,
		ProvideAggregator,
		ProvideEncoder,

		// Market data
		ProvideEODHD,
		ProvidePriceFeed,
		ProvidePrices,

		// Use cases
		ProvideEngine,
		ProvideRenderer,
		ProvideExchangeRunner,
		ProvideFundamentalsHandler,
		ProvideRunJob,

		// Transport and application
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
