package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(WithRegisterer(prometheus.NewRegistry())); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestEncode(t *testing.T) {
	b, err := encode(map[string]int{"count": 2})
	if err != nil || string(b) != `{"count":2}` {
		t.Fatalf("unexpected %s %v", b, err)
	}
	if b, _ = encode("raw"); string(b) != "raw" {
		t.Fatalf("strings pass through, got %s", b)
	}
	if _, err = encode(make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestParseCompression(t *testing.T) {
	if parseCompression("zstd") != kafka.Zstd || parseCompression("bogus") != kafka.Gzip {
		t.Fatalf("unexpected compression mapping")
	}
}

func TestPublishFailureIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProducer(
		WithBrokers([]string{"127.0.0.1:1"}),
		WithMaxAttempts(1),
		WithWriteTimeout(200*time.Millisecond),
		WithRegisterer(reg),
	)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.PublishMessage(ctx, "optionsflow.logs", []string{"x"}); err == nil {
		t.Fatalf("expected publish to an unreachable broker to fail")
	}
	if n := testutil.ToFloat64(p.metrics.messages.WithLabelValues("optionsflow.logs", "gzip", "error")); n != 1 {
		t.Fatalf("expected one failed message, got %v", n)
	}
}
