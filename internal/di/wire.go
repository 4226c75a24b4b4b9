//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"Watchdog/pkg/config"
	"Watchdog/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Storage
		ProvideCache,
		ProvideSynthesisStore,

		// Domain
		ProvideRouter,
		ProvideNarrator,
		ProvideSettings,
		ProvideWatchdog,

		// Ingest
		ProvideSnapshotPipeline,
		ProvideSnapshotHandler,
		ProvideKafkaConsumer,
		ProvideSnapshotCollector,

		// Delivery
		ProvideKafkaProducer,
		ProvideDeliveryPublisher,
		ProvideAlertHub,

		// HTTP
		ProvideWatchdogHandler,
		ProvideHTTPServer,

		// Application server
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return nil, nil, nil
}
