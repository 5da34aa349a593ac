package di

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"OptionsFlow/internal/domain/repository"
	"OptionsFlow/internal/handler/mcp"
	"OptionsFlow/internal/handler/tools"
	"OptionsFlow/internal/service/broker"
	"OptionsFlow/internal/service/ratelimit"
	"OptionsFlow/pkg/config"
	xhttp "OptionsFlow/pkg/http"
	pkgkafka "OptionsFlow/pkg/kafka"
	"OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/metrics"
	"OptionsFlow/pkg/server"
	"OptionsFlow/pkg/util"
)

// ProvideKafkaProducer creates the log shipping producer. It returns nil
// when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithClientID(server.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger creates the process logger and attaches the error-log
// collector when a producer is available.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Kafka.Collector.FlushInterval,
			CountThreshold: cfg.Kafka.Collector.CountThreshold,
			Topic:          cfg.Kafka.Topic,
			Publisher:      producer,
		})
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideBrokerClient creates the data broker transport client.
func ProvideBrokerClient(cfg *config.Config, l *logger.Logger, m repository.Metrics) (*broker.Client, error) {
	client, err := broker.New(broker.Config{
		Target:            cfg.BrokerTarget(),
		Timeout:           cfg.Broker.Timeout,
		HealthTimeout:     cfg.Broker.HealthTimeout,
		ConnectTimeout:    cfg.Broker.ConnectTimeout,
		ReconnectAttempts: cfg.Broker.ReconnectAttempts,
		ReconnectBackoff:  cfg.Broker.ReconnectBackoff,
		KeepaliveInterval: cfg.Broker.KeepaliveInterval,
		HistorySeconds:    cfg.Broker.HistorySeconds,
	}, broker.WithLogger(l), broker.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("broker client: %w", err)
	}
	return client, nil
}

// ProvideTradingCalendar loads the exchange calendar used for expiration warnings.
func ProvideTradingCalendar(cfg *config.Config) *util.TradingCalendar {
	return util.NewTradingCalendar(cfg.Calendar.MIC)
}

// ProvideDispatcher creates the tool dispatcher.
func ProvideDispatcher(client *broker.Client, cal *util.TradingCalendar, l *logger.Logger, m repository.Metrics) *tools.Dispatcher {
	return tools.NewDispatcher(client,
		tools.WithLogger(l),
		tools.WithMetrics(m),
		tools.WithCalendar(cal),
	)
}

// ProvideRegistry registers the four tools.
func ProvideRegistry(d *tools.Dispatcher) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	if err := d.Register(reg); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return reg, nil
}

// ProvideMCPServer creates the JSON-RPC front end.
func ProvideMCPServer(reg *tools.Registry, l *logger.Logger) *mcp.Server {
	return mcp.NewServer(reg, l, server.Name, server.Version)
}

// ProvideHTTPServer creates the echo server. It returns nil when the HTTP
// transport is disabled.
func ProvideHTTPServer(cfg *config.Config, s *mcp.Server, l *logger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	limiter := ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultGatherer, prometheus.DefaultRegisterer))
	}
	return xhttp.NewServer(l, []xhttp.Handler{mcp.NewHTTPHandler(s, limiter)}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	s *mcp.Server,
	httpServer *xhttp.Server,
	client *broker.Client,
	producer *pkgkafka.Producer,
) *server.App {
	return server.New(cfg, l, s, httpServer, client, producer)
}
