// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Index, Search, Arxiv, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, shared by all binaries.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Arxiv     ArxivConfig     `yaml:"arxiv"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP and admin-RPC server settings for searchd.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	AdminPort       int           `yaml:"adminPort"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	PaperEvents  string `yaml:"paperEvents"`
	SearchEvents string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig controls BM25 tuning and the rebuild schedule. K1 and B are the
// standard BM25 constants; they are configuration, not code, so tests and
// operators can probe ranking sensitivity.
type IndexConfig struct {
	K1              float64       `yaml:"k1"`
	B               float64       `yaml:"b"`
	RebuildInterval time.Duration `yaml:"rebuildInterval"`
	RebuildDebounce time.Duration `yaml:"rebuildDebounce"`
}

// SearchConfig controls result limits and query expansion.
type SearchConfig struct {
	DefaultLimit    int    `yaml:"defaultLimit"`
	MaxLimit        int    `yaml:"maxLimit"`
	ExpansionPath   string `yaml:"expansionPath"`
	ExpandByDefault bool   `yaml:"expandByDefault"`
}

// ArxivConfig controls the arXiv API harvester.
type ArxivConfig struct {
	BaseURL         string        `yaml:"baseUrl"`
	PageSize        int           `yaml:"pageSize"`
	MaxResults      int           `yaml:"maxResults"`
	RequestInterval time.Duration `yaml:"requestInterval"`
	FetchInterval   time.Duration `yaml:"fetchInterval"`
	Categories      []string      `yaml:"categories"`
}

// AnalyticsConfig controls the analytics service and the event collector
// embedded in searchd.
type AnalyticsConfig struct {
	Port             int           `yaml:"port"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	TopQueries       int           `yaml:"topQueries"`
}

// RateLimitConfig controls per-client throttling of the search API.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`
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

// Load builds the effective configuration in three layers: built-in
// defaults, then the YAML file at path (when non-empty), then PS_*
// environment variables. Later layers win.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			AdminPort:       9000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "paperscope",
			User:            "paperscope",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "paperscope-searchd",
			Topics: KafkaTopics{
				PaperEvents:  "paper-events",
				SearchEvents: "search-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			K1:              1.5,
			B:               0.75,
			RebuildInterval: 15 * time.Minute,
			RebuildDebounce: 5 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit:    50,
			MaxLimit:        100,
			ExpansionPath:   "configs/expansion.yaml",
			ExpandByDefault: true,
		},
		Arxiv: ArxivConfig{
			BaseURL:         "http://export.arxiv.org/api/query",
			PageSize:        100,
			MaxResults:      1000,
			RequestInterval: 3 * time.Second,
			FetchInterval:   6 * time.Hour,
			Categories:      []string{"cs.AI", "cs.CL", "cs.LG", "cs.CV", "stat.ML"},
		},
		Analytics: AnalyticsConfig{
			Port:             8083,
			BatchSize:        50,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			TopQueries:       20,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 120,
			Window:            time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides maps PS_* environment variables onto config fields.
// Unset variables leave the field alone; unparsable numbers are ignored
// rather than failing startup.
func applyEnvOverrides(cfg *Config) {
	envInt("PS_SERVER_PORT", &cfg.Server.Port)
	envInt("PS_SERVER_ADMIN_PORT", &cfg.Server.AdminPort)
	envString("PS_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("PS_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("PS_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("PS_POSTGRES_USER", &cfg.Postgres.User)
	envString("PS_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("PS_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	envList("PS_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	envString("PS_KAFKA_GROUP", &cfg.Kafka.ConsumerGroup)
	envString("PS_REDIS_ADDR", &cfg.Redis.Addr)
	envString("PS_REDIS_PASSWORD", &cfg.Redis.Password)
	envString("PS_SEARCH_EXPANSION_PATH", &cfg.Search.ExpansionPath)
	envString("PS_ARXIV_BASE_URL", &cfg.Arxiv.BaseURL)
	envList("PS_ARXIV_CATEGORIES", &cfg.Arxiv.Categories)
	envString("PS_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("PS_LOGGING_FORMAT", &cfg.Logging.Format)
	envInt("PS_METRICS_PORT", &cfg.Metrics.Port)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envList(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.Split(v, ",")
	}
}
