//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"BriefMaker/pkg/config"
	"BriefMaker/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideLimiter,

		// Calendar and record shape
		ProvideCodec,
		ProvideSession,
		ProvideLayout,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaConsumer,

		// Repositories
		ProvideBriefStorage,
		ProvideMomentSource,
		ProvideBriefPublisher,
		ProvideBriefCache,

		// Pipeline
		ProvideIndicatorFeed,
		ProvideWindowStore,
		ProvideIndexBoard,
		ProvideTickDispatcher,
		ProvideRepairConfig,
		ProvideWindowFinalizer,
		ProvideBriefPipeline,
		ProvideIngestor,
		ProvideBriefService,

		// Inputs and API
		ProvideTickBatchHandler,
		ProvideFeed,
		ProvideBriefsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
