package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		// stdout is reserved for the stdio tool transport
		Output string `yaml:"output" default:"stderr" validate:"required"`
	} `yaml:"log"`
	Broker struct {
		Host              string        `yaml:"host" default:"localhost" validate:"required"`
		Port              int           `yaml:"port" default:"9090" validate:"min=1,max=65535"`
		Timeout           time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
		HealthTimeout     time.Duration `yaml:"health_timeout" default:"5s" validate:"gt=0"`
		ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"5s" validate:"gt=0"`
		ReconnectAttempts int           `yaml:"reconnect_attempts" default:"1" validate:"min=0,max=5"`
		ReconnectBackoff  time.Duration `yaml:"reconnect_backoff" default:"250ms" validate:"min=0"`
		// zero disables keepalive; grpc servers reject pings more frequent than 5m by default
		KeepaliveInterval time.Duration `yaml:"keepalive_interval" validate:"omitempty,min=5m"`
		HistorySeconds    int           `yaml:"history_seconds" default:"1200" validate:"min=60"`
	} `yaml:"broker"`
	Transport struct {
		Stdio bool `yaml:"stdio" default:"true"`
	} `yaml:"transport"`
	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Port            int           `yaml:"port" default:"8088" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity" default:"20" validate:"gt=0"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"5" validate:"gt=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Calendar struct {
		MIC string `yaml:"mic" default:"xnys"`
	} `yaml:"calendar"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"optionsflow.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Collector    struct {
			FlushInterval  time.Duration `yaml:"flush_interval" default:"30s" validate:"gt=0"`
			CountThreshold int           `yaml:"count_threshold" default:"100" validate:"min=1"`
		} `yaml:"collector"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Default returns a configuration populated only with defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is read first; real env vars take precedence.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("GRPC_HOST"); v != "" {
		c.Broker.Host = v
	}
	if v := getenv("GRPC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRPC_PORT: %w", err)
		}
		c.Broker.Port = port
	}
	if v := getenv("GRPC_TIMEOUT"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("GRPC_TIMEOUT: %w", err)
		}
		c.Broker.Timeout = d
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
		c.Server.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	return nil
}

// parseSeconds accepts a Go duration ("45s") or a bare number of seconds ("30").
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(n * float64(time.Second)), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if !c.Transport.Stdio && !c.Server.Enabled {
		return fmt.Errorf("at least one of transport.stdio or server.enabled must be set")
	}
	if c.Transport.Stdio && c.Log.Output == "stdout" {
		return fmt.Errorf("log.output cannot be stdout while the stdio transport is enabled")
	}
	return nil
}

// BrokerTarget returns host:port of the data broker.
func (c *Config) BrokerTarget() string {
	return fmt.Sprintf("%s:%d", c.Broker.Host, c.Broker.Port)
}
