package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
service_name = "cryptoquote-test"

[http]
port = 9000

[database]
dsn = "user:pass@tcp(localhost:3306)/quotes"

[kafka]
brokers = ["localhost:9092"]

[quote]
cache_ttl = 15
retention_hours = 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServiceName != "cryptoquote-test" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("HTTP.Port = %d, want 9000", cfg.HTTP.Port)
	}
	if cfg.GRPC.Port != 50051 {
		t.Errorf("GRPC.Port = %d, want default 50051", cfg.GRPC.Port)
	}
	if !cfg.Kafka.Enabled() || cfg.Kafka.InboundTopic != "crypto-quotes.raw" {
		t.Errorf("Kafka = %+v", cfg.Kafka)
	}
	if got := cfg.Quote.CacheTTLDuration(); got != 15*time.Second {
		t.Errorf("CacheTTLDuration() = %v", got)
	}
	if got := cfg.Quote.Retention(); got != 2*time.Hour {
		t.Errorf("Retention() = %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadWithDefaultsEnvOverride(t *testing.T) {
	t.Setenv("APP_DATABASE_DSN", "postgres://localhost/quotes")
	t.Setenv("APP_HTTP_PORT", "8181")

	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadWithDefaults() error = %v", err)
	}
	if cfg.Database.DSN != "postgres://localhost/quotes" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.HTTP.Port != 8181 {
		t.Errorf("HTTP.Port = %d, want 8181", cfg.HTTP.Port)
	}
	if cfg.Kafka.Enabled() {
		t.Errorf("Kafka should be disabled without brokers")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			ServiceName: "svc",
			HTTP:        HTTPConfig{Port: 8080},
			GRPC:        GRPCConfig{Port: 50051},
			Database:    DatabaseConfig{Driver: "mysql", DSN: "dsn"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad http port", func(c *Config) { c.HTTP.Port = 70000 }, true},
		{"bad grpc port", func(c *Config) { c.GRPC.Port = 0 }, true},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"same kafka topics", func(c *Config) {
			c.Kafka = KafkaConfig{Brokers: []string{"b"}, InboundTopic: "t", OutboundTopic: "t"}
		}, true},
		{"rate limit without qps", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "cryptoquote", "config.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Kafka.InboundTopic == cfg.Kafka.OutboundTopic {
		t.Error("shipped config routes inbound and outbound to the same topic")
	}
	if cfg.Quote.PurgeEvery() != time.Hour {
		t.Errorf("PurgeEvery() = %v", cfg.Quote.PurgeEvery())
	}
}
