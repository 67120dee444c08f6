// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Index, Redis, Postgres, Badger, Kafka, Scan, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BennyH26/titan/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Badger   BadgerConfig   `yaml:"badger"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Scan     ScanConfig     `yaml:"scan"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexConfig selects the index backend and sets transaction behaviour.
type IndexConfig struct {
	// Backend is the registered provider name (inmem, badger, redis, postgres).
	Backend string `yaml:"backend"`
	// Options is the free-form backend option namespace passed to the factory.
	Options map[string]string `yaml:"options"`
	// CommitBudget bounds how long a transaction commit may block.
	CommitBudget time.Duration `yaml:"commitBudget"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// BadgerConfig holds the local BadgerDB backend settings.
type BadgerConfig struct {
	Dir        string `yaml:"dir"`
	InMemory   bool   `yaml:"inMemory"`
	SyncWrites bool   `yaml:"syncWrites"`
}

// KafkaConfig holds Kafka broker and topic settings for the mutation feed.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexMutations string `yaml:"indexMutations"`
	IndexRestore   string `yaml:"indexRestore"`
}

// ScanConfig controls the scan driver's parallelism.
type ScanConfig struct {
	Workers int `yaml:"workers"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// BackendOptions resolves the option map handed to the index backend
// factory. The typed Badger/Redis/Postgres section for the selected
// backend supplies the base values, using the factories' option names;
// explicit index.options entries override them.
func (c *Config) BackendOptions() map[string]string {
	opts := make(map[string]string)
	put := func(key, value string) {
		if value != "" {
			opts[key] = value
		}
	}
	switch c.Index.Backend {
	case "badger":
		put("dir", c.Badger.Dir)
		if c.Badger.InMemory {
			opts["inMemory"] = "true"
		}
		if c.Badger.SyncWrites {
			opts["syncWrites"] = "true"
		}
	case "redis":
		put("addr", c.Redis.Addr)
		put("password", c.Redis.Password)
		if c.Redis.DB != 0 {
			opts["db"] = strconv.Itoa(c.Redis.DB)
		}
	case "postgres":
		put("host", c.Postgres.Host)
		if c.Postgres.Port != 0 {
			opts["port"] = strconv.Itoa(c.Postgres.Port)
		}
		put("database", c.Postgres.Database)
		put("user", c.Postgres.User)
		put("password", c.Postgres.Password)
		put("sslMode", c.Postgres.SSLMode)
	}
	for k, v := range c.Index.Options {
		opts[k] = v
	}
	return opts
}

// Load reads the YAML file at path, applies environment overrides, fills
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(&cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Index.Backend == "" {
		c.Index.Backend = "inmem"
	}
	if c.Index.CommitBudget <= 0 {
		c.Index.CommitBudget = 2 * time.Second
	}
	if c.Scan.Workers <= 0 {
		c.Scan.Workers = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9102
	}
}

// Validate checks for configuration that would be fatal at startup.
func (c *Config) Validate() error {
	if c.Index.Backend == "" {
		return errors.New(errors.ErrConfiguration, "config", "validate", "index backend must be set")
	}
	// Validation looks at the same merged option map the factory receives,
	// so an endpoint set through index.options counts as configured.
	opts := c.BackendOptions()
	switch c.Index.Backend {
	case "redis":
		if opts["addr"] == "" {
			return errors.New(errors.ErrConfiguration, "config", "validate", "redis backend selected but no addr is configured")
		}
	case "postgres":
		if opts["host"] == "" || opts["database"] == "" {
			return errors.New(errors.ErrConfiguration, "config", "validate", "postgres backend selected but host/database are not set")
		}
	case "badger":
		inMemory, _ := strconv.ParseBool(opts["inMemory"])
		if !inMemory && opts["dir"] == "" {
			return errors.New(errors.ErrConfiguration, "config", "validate", "badger backend selected but no dir is configured")
		}
	}
	if c.Index.CommitBudget < 0 {
		return errors.New(errors.ErrConfiguration, "config", "validate", "commitBudget must not be negative")
	}
	return nil
}

// applyEnvOverrides lets deployment environments override connection
// endpoints and credentials without editing the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TITAN_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("TITAN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TITAN_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TITAN_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TITAN_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TITAN_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TITAN_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TITAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
