package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "disputeflow.config"

// EnvPrefix is prepended to every environment override (ARBITER_HTTP_ADDR).
const EnvPrefix = "arbiter"

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const (
	DefaultHTTPAddr           = ":8080"
	DefaultTokenTTL           = 12 * time.Hour
	DefaultOutboxPollInterval = time.Second
	DefaultOutboxBatchSize    = 50
	DefaultMaxDBConns         = 10
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	ServiceID          string        `yaml:"serviceId"          split_words:"true"`
	HTTPAddr           string        `yaml:"httpAddr"           envconfig:"HTTP_ADDR"`
	Storage            string        `yaml:"storage"`
	DatabaseURL        string        `yaml:"databaseUrl"        envconfig:"DATABASE_URL"`
	MaxDBConns         int32         `yaml:"maxDbConns"         envconfig:"MAX_DB_CONNS"`
	JWTSecret          string        `yaml:"jwtSecret"          envconfig:"JWT_SECRET"`
	TokenTTL           time.Duration `yaml:"tokenTTL"           envconfig:"TOKEN_TTL"`
	EscrowAccount      string        `yaml:"escrowAccount"      split_words:"true"`
	KafkaBrokers       []string      `yaml:"kafkaBrokers"       envconfig:"KAFKA_BROKERS"`
	KafkaTopicPrefix   string        `yaml:"kafkaTopicPrefix"   split_words:"true"`
	RedisURL           string        `yaml:"redisUrl"           envconfig:"REDIS_URL"`
	RedisStream        string        `yaml:"redisStream"        split_words:"true"`
	OutboxPollInterval time.Duration `yaml:"outboxPollInterval" split_words:"true"`
	OutboxBatchSize    int           `yaml:"outboxBatchSize"    split_words:"true"`
	Debug              bool          `yaml:"debug"`
}

func defaults() *Config {
	return &Config{
		ServiceID:          "disputeflow",
		HTTPAddr:           DefaultHTTPAddr,
		Storage:            StoragePostgres,
		MaxDBConns:         DefaultMaxDBConns,
		TokenTTL:           DefaultTokenTTL,
		EscrowAccount:      "arbitration-escrow",
		KafkaTopicPrefix:   "arbitration.",
		RedisStream:        "arbitration:notifications",
		OutboxPollInterval: DefaultOutboxPollInterval,
		OutboxBatchSize:    DefaultOutboxBatchSize,
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and then the environment. Variables with an explicit envconfig name
// (DATABASE_URL, JWT_SECRET, REDIS_URL, ...) are also read without the
// prefix when the prefixed form is unset.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("databaseUrl is required for postgres storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid storage: %q (must be 'postgres' or 'memory')", c.Storage))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwtSecret is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("httpAddr is required"))
	}
	if c.EscrowAccount == "" {
		errs = append(errs, errors.New("escrowAccount is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid tokenTTL: %s", c.TokenTTL))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid outboxPollInterval: %s", c.OutboxPollInterval))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid outboxBatchSize: %d", c.OutboxBatchSize))
	}
	if c.MaxDBConns <= 0 {
		errs = append(errs, fmt.Errorf("invalid maxDbConns: %d", c.MaxDBConns))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
