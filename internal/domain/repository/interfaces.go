package repository

import (
	"context"

	"OptionsFlow/internal/domain/models"
)

// FlowBroker is the remote options order flow data broker.
// Implementations return *apperr.Error values classified by kind.
type FlowBroker interface {
	Snapshot(ctx context.Context, ticker string) (*models.FlowSnapshot, error)
	Configure(ctx context.Context, cfg models.MonitoringConfiguration) (*models.ConfigureReply, error)
	Status(ctx context.Context, ticker string) (*models.MonitoringStatus, error)
	Probe(ctx context.Context) models.HealthStatus
	Target() string
}

type Metrics interface {
	RecordBrokerCall(op, result string)
	RecordReconnect()
	RecordError(kind string)
	RecordToolCall(tool, outcome string)
	RecordLatency(op string, seconds float64)
}
