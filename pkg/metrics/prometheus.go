package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	brokerCalls *prometheus.CounterVec
	reconnects  prometheus.Counter
	errorsTotal *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// New returns the process-wide Prometheus recorder, registering collectors
// with the default registry on first use.
func New() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewWithRegisterer(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}

// NewWithRegisterer creates a recorder bound to reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		brokerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_broker_calls_total",
				Help: "Data broker RPCs by operation and result kind",
			},
			[]string{"operation", "result"},
		),
		reconnects: f.NewCounter(
			prometheus.CounterOpts{
				Name: "optionsflow_broker_reconnects_total",
				Help: "Broker connections discarded after a transport failure",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		toolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionsflow_tool_calls_total",
				Help: "Tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optionsflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordBrokerCall records one RPC attempt; result is "ok" or an error kind.
func (r *Recorder) RecordBrokerCall(op, result string) {
	r.brokerCalls.WithLabelValues(op, result).Inc()
}

// RecordReconnect records a discarded broker connection.
func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordToolCall records a tool invocation outcome.
func (r *Recorder) RecordToolCall(tool, outcome string) {
	r.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) RecordBrokerCall(string, string) {}
func (Noop) RecordReconnect() {}
func (Noop) RecordError(string) {}
func (Noop) RecordToolCall(string, string) {}
func (Noop) RecordLatency(string, float64) {}
