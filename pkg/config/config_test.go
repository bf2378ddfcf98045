package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.AdminPort != 9000 {
		t.Errorf("Server.AdminPort = %d, want 9000", cfg.Server.AdminPort)
	}
	if cfg.Index.K1 != 1.5 || cfg.Index.B != 0.75 {
		t.Errorf("Index K1/B = %v/%v, want 1.5/0.75", cfg.Index.K1, cfg.Index.B)
	}
	if cfg.Search.DefaultLimit != 50 || cfg.Search.MaxLimit != 100 {
		t.Errorf("Search limits = %d/%d, want 50/100", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if !cfg.Search.ExpandByDefault {
		t.Error("Search.ExpandByDefault = false, want true")
	}
	if cfg.Redis.CacheTTL != 60*time.Second {
		t.Errorf("Redis.CacheTTL = %v, want 60s", cfg.Redis.CacheTTL)
	}
	if cfg.Arxiv.RequestInterval != 3*time.Second {
		t.Errorf("Arxiv.RequestInterval = %v, want 3s", cfg.Arxiv.RequestInterval)
	}
	if len(cfg.Arxiv.Categories) == 0 {
		t.Error("Arxiv.Categories is empty")
	}
	if cfg.Kafka.Topics.SearchEvents != "search-events" {
		t.Errorf("Kafka.Topics.SearchEvents = %q", cfg.Kafka.Topics.SearchEvents)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9999
index:
  k1: 1.2
  rebuildInterval: 30m
redis:
  cacheTTL: 45s
arxiv:
  categories:
    - cs.RO
rateLimit:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Index.K1 != 1.2 {
		t.Errorf("Index.K1 = %v, want 1.2", cfg.Index.K1)
	}
	if cfg.Index.RebuildInterval != 30*time.Minute {
		t.Errorf("Index.RebuildInterval = %v, want 30m", cfg.Index.RebuildInterval)
	}
	if cfg.Redis.CacheTTL != 45*time.Second {
		t.Errorf("Redis.CacheTTL = %v, want 45s (duration strings must parse)", cfg.Redis.CacheTTL)
	}
	if len(cfg.Arxiv.Categories) != 1 || cfg.Arxiv.Categories[0] != "cs.RO" {
		t.Errorf("Arxiv.Categories = %v, want [cs.RO]", cfg.Arxiv.Categories)
	}
	if cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled = true, want false")
	}

	// Values the file does not mention keep their defaults.
	if cfg.Search.MaxLimit != 100 {
		t.Errorf("Search.MaxLimit = %d, want default 100", cfg.Search.MaxLimit)
	}
	if cfg.Postgres.Host != "localhost" {
		t.Errorf("Postgres.Host = %q, want default localhost", cfg.Postgres.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Load returned nil error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("err = %q, want read failure message", err)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "server: [this is not\n  a mapping\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load returned nil error for malformed YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("err = %q, want parse failure message", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PS_SERVER_PORT", "1234")
	t.Setenv("PS_POSTGRES_HOST", "db.internal")
	t.Setenv("PS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("PS_REDIS_ADDR", "cache.internal:6379")
	t.Setenv("PS_LOGGING_LEVEL", "debug")
	t.Setenv("PS_ARXIV_CATEGORIES", "cs.AI,cs.NE")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 1234 {
		t.Errorf("Server.Port = %d, want 1234", cfg.Server.Port)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("Postgres.Host = %q, want db.internal", cfg.Postgres.Host)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Redis.Addr != "cache.internal:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Arxiv.Categories) != 2 || cfg.Arxiv.Categories[0] != "cs.AI" {
		t.Errorf("Arxiv.Categories = %v", cfg.Arxiv.Categories)
	}
}

func TestEnvOverrideInvalidPort(t *testing.T) {
	t.Setenv("PS_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080 when override is garbage", cfg.Server.Port)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9999\n")
	t.Setenv("PS_SERVER_PORT", "1234")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 1234 {
		t.Errorf("Server.Port = %d, want env override 1234 over file value", cfg.Server.Port)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "paperscope",
		User:     "app",
		Password: "secret",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=app password=secret dbname=paperscope sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
