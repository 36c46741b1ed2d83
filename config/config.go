// Package config centralises runtime configuration for WebhookHub services.
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment where WebhookHub operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// Required environment variables; none has a production default.
const (
	EnvDBURL            = "DB_URL"
	EnvDBUser           = "DB_USER"
	EnvDBPassword       = "DB_PASSWORD"
	EnvRabbitMQHost     = "RABBITMQ_HOST"
	EnvRabbitMQPort     = "RABBITMQ_PORT"
	EnvRabbitMQUser     = "RABBITMQ_USER"
	EnvRabbitMQPassword = "RABBITMQ_PASSWORD"
	EnvRabbitMQVHost    = "RABBITMQ_VHOST"
)

// DatabaseSettings configures the PostgreSQL connection pools.
type DatabaseSettings struct {
	URL            string
	User           string
	Password       string
	IngestPoolSize int32
	WorkerPoolSize int32
	ConnectTimeout time.Duration
}

// BrokerSettings configures the RabbitMQ connection.
type BrokerSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

// IngestSettings tunes the ingest HTTP server.
type IngestSettings struct {
	Addr              string        `yaml:"addr"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	SourceRatePerSec  float64       `yaml:"source_rate_per_sec"`
	SourceBurst       int           `yaml:"source_burst"`
	AdminToken        string        `yaml:"admin_token"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// WorkerSettings tunes the delivery worker.
type WorkerSettings struct {
	Prefetch   int    `yaml:"prefetch"`
	HealthAddr string `yaml:"health_addr"`
}

// TelemetrySettings configures the OTLP metrics exporter.
type TelemetrySettings struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// Settings contains the WebhookHub configuration tree loaded from defaults,
// the environment, and an optional overrides file.
type Settings struct {
	Environment Environment
	Database    DatabaseSettings
	Broker      BrokerSettings
	Ingest      IngestSettings
	Worker      WorkerSettings
	Telemetry   TelemetrySettings
}

// Default returns the default WebhookHub configuration. Connection settings
// stay empty: they are required from the environment and carry no defaults.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Database: DatabaseSettings{
			URL:            "",
			User:           "",
			Password:       "",
			IngestPoolSize: 10,
			WorkerPoolSize: 5,
			ConnectTimeout: 10 * time.Second,
		},
		Broker: BrokerSettings{
			Host:     "",
			Port:     0,
			User:     "",
			Password: "",
			VHost:    "",
		},
		Ingest: IngestSettings{
			Addr:              ":8080",
			MaxBodyBytes:      1 << 20,
			SourceRatePerSec:  50,
			SourceBurst:       100,
			AdminToken:        "",
			ReadHeaderTimeout: 5 * time.Second,
		},
		Worker: WorkerSettings{
			Prefetch:   5,
			HealthAddr: ":8081",
		},
		Telemetry: TelemetrySettings{
			Enabled:      false,
			OTLPEndpoint: "localhost:4318",
			OTLPInsecure: false,
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding
// defaults. Missing required variables are reported all at once by Validate.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("WEBHOOKHUB_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}

	cfg.Database.URL = strings.TrimSpace(os.Getenv(EnvDBURL))
	cfg.Database.User = strings.TrimSpace(os.Getenv(EnvDBUser))
	cfg.Database.Password = os.Getenv(EnvDBPassword)

	cfg.Broker.Host = strings.TrimSpace(os.Getenv(EnvRabbitMQHost))
	if v := strings.TrimSpace(os.Getenv(EnvRabbitMQPort)); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	cfg.Broker.User = strings.TrimSpace(os.Getenv(EnvRabbitMQUser))
	cfg.Broker.Password = os.Getenv(EnvRabbitMQPassword)
	cfg.Broker.VHost = strings.TrimSpace(os.Getenv(EnvRabbitMQVHost))

	if v := strings.TrimSpace(os.Getenv("WEBHOOKHUB_ADMIN_TOKEN")); v != "" {
		cfg.Ingest.AdminToken = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
	return cfg
}

// Validate reports every missing required setting in one error.
func (s Settings) Validate() error {
	missing := make([]string, 0, 8)
	if s.Database.URL == "" {
		missing = append(missing, EnvDBURL)
	}
	if s.Database.User == "" {
		missing = append(missing, EnvDBUser)
	}
	if s.Database.Password == "" {
		missing = append(missing, EnvDBPassword)
	}
	if s.Broker.Host == "" {
		missing = append(missing, EnvRabbitMQHost)
	}
	if s.Broker.Port == 0 {
		missing = append(missing, EnvRabbitMQPort)
	}
	if s.Broker.User == "" {
		missing = append(missing, EnvRabbitMQUser)
	}
	if s.Broker.Password == "" {
		missing = append(missing, EnvRabbitMQPassword)
	}
	if s.Broker.VHost == "" {
		missing = append(missing, EnvRabbitMQVHost)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if _, err := url.Parse(s.Database.URL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvDBURL, err)
	}
	return nil
}

// DSN combines the database URL with the configured credentials.
func (d DatabaseSettings) DSN() string {
	u, err := url.Parse(d.URL)
	if err != nil || u.Host == "" {
		return d.URL
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// AMQPURL renders the broker settings as an amqp:// URL. The vhost segment is
// path-escaped so the default vhost "/" survives the round trip.
func (b BrokerSettings) AMQPURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(b.User, b.Password),
		Host:   fmt.Sprintf("%s:%d", b.Host, b.Port),
	}
	return u.String() + "/" + url.PathEscape(b.VHost)
}
