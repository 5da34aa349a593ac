//go:build wireinject
// +build wireinject

package di

import (
	"OptionsFlow/pkg/config"
	"OptionsFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Data broker transport
		ProvideBrokerClient,
		ProvideTradingCalendar,

		// Tools and transports
		ProvideDispatcher,
		ProvideRegistry,
		ProvideMCPServer,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
