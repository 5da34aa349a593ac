package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type chanPublisher struct {
	topics chan string
	logs   chan []AggregatedLogEntry
}

func (p *chanPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.topics <- topic
	if logs, ok := payload.([]AggregatedLogEntry); ok {
		p.logs <- logs
	}
	return nil
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.With(String("request_id", "abc")).Info("call done",
		String("tool", "analyze_options_flow"),
		Float64("latency_ms", 12.5),
		Duration("timeout", 2*time.Second),
	)
	out := buf.String()
	for _, want := range []string{`"request_id":"abc"`, `"tool":"analyze_options_flow"`, `"latency_ms":12.5`, `"timeout":2000`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %s", buf.String())
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCollectorAggregatesErrors(t *testing.T) {
	pub := &chanPublisher{topics: make(chan string, 4), logs: make(chan []AggregatedLogEntry, 4)}
	l, err := New(&Config{Level: "error", Format: "json", Writer: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "optionsflow.logs",
		Publisher:      pub,
	})
	boom := errors.New("broker unreachable")
	for i := 0; i < 2; i++ {
		l.Error("call failed", String("kind", "UNAVAILABLE"), Error(boom))
	}
	l.RemoveCollector()

	select {
	case topic := <-pub.topics:
		if topic != "optionsflow.logs" {
			t.Fatalf("unexpected topic %s", topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("collector never flushed")
	}
	logs := <-pub.logs
	if len(logs) != 1 || logs[0].Count != 2 {
		t.Fatalf("expected one aggregated entry with count 2, got %+v", logs)
	}
}
