package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Broker.Host != "localhost" || c.Broker.Port != 9090 {
		t.Fatalf("unexpected broker %s:%d", c.Broker.Host, c.Broker.Port)
	}
	if c.Broker.Timeout != 30*time.Second {
		t.Fatalf("default timeout should be 30s, got %v", c.Broker.Timeout)
	}
	if c.Broker.HealthTimeout >= c.Broker.Timeout {
		t.Fatalf("health timeout must be shorter than the call timeout")
	}
	if c.Broker.ReconnectAttempts != 1 {
		t.Fatalf("expected one reconnect attempt, got %d", c.Broker.ReconnectAttempts)
	}
	if !c.Transport.Stdio || c.Log.Output != "stderr" {
		t.Fatalf("stdio transport must log to stderr")
	}
	if c.Broker.KeepaliveInterval != 0 {
		t.Fatalf("keepalive should be off by default, got %v", c.Broker.KeepaliveInterval)
	}
	if c.BrokerTarget() != "localhost:9090" {
		t.Fatalf("unexpected target %s", c.BrokerTarget())
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "broker:\n  host: broker.internal\n  port: 7000\n  timeout: 12s\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Broker.Host != "broker.internal" || c.Broker.Port != 7000 || c.Broker.Timeout != 12*time.Second {
		t.Fatalf("yaml not applied: %+v", c.Broker)
	}
	if c.Broker.HealthTimeout != 5*time.Second {
		t.Fatalf("untouched keys keep defaults, got %v", c.Broker.HealthTimeout)
	}
	if c.Log.Level != "debug" {
		t.Fatalf("unexpected level %s", c.Log.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("broker:\n  port: 70000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for port")
	}
}

func TestKeepaliveBelowServerMinimumRejected(t *testing.T) {
	for body, ok := range map[string]bool{
		"broker:\n  keepalive_interval: 30s\n": false,
		"broker:\n  keepalive_interval: 5m\n":  true,
	} {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := Load(path)
		if (err == nil) != ok {
			t.Fatalf("%q: unexpected result %v", body, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	env := map[string]string{
		"GRPC_HOST":     "10.0.0.5",
		"GRPC_PORT":     "9191",
		"GRPC_TIMEOUT":  "45",
		"LOG_LEVEL":     "WARN",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
	}
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if c.BrokerTarget() != "10.0.0.5:9191" {
		t.Fatalf("unexpected target %s", c.BrokerTarget())
	}
	if c.Broker.Timeout != 45*time.Second {
		t.Fatalf("bare seconds should parse, got %v", c.Broker.Timeout)
	}
	if c.Log.Level != "warn" {
		t.Fatalf("level should be lowercased, got %s", c.Log.Level)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("kafka brokers not applied: %+v", c.Kafka.Brokers)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("should validate: %v", err)
	}
}

func TestApplyEnvBadPort(t *testing.T) {
	c, _ := Default()
	err := c.applyEnv(func(k string) string {
		if k == "GRPC_PORT" {
			return "nine"
		}
		return ""
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}
