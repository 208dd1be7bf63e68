package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-gateway
api:
  rest_url: https://example.test/api/v10
  token: abc.def
identify:
  intents: 513
shards:
  count: 4
  ids: [1, 3]
connection:
  hello_timeout: 5s
  shutdown_resumable: true
store:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: gateway
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-gateway" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-gateway")
	}
	if cfg.API.RestURL != "https://example.test/api/v10" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://example.test/api/v10")
	}
	if cfg.Identify.Intents != 513 {
		t.Errorf("Identify.Intents = %d, want 513", cfg.Identify.Intents)
	}
	if cfg.Shards.Count != 4 || len(cfg.Shards.IDs) != 2 || cfg.Shards.IDs[1] != 3 {
		t.Errorf("Shards = %+v, want count 4 ids [1 3]", cfg.Shards)
	}
	if cfg.Connection.HelloTimeout != 5*time.Second {
		t.Errorf("Connection.HelloTimeout = %v, want 5s", cfg.Connection.HelloTimeout)
	}
	if !cfg.Connection.ShutdownResumable {
		t.Error("Connection.ShutdownResumable = false, want true")
	}
	if cfg.Store.Postgres.Host != "localhost" {
		t.Errorf("Store.Postgres.Host = %q, want %q", cfg.Store.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "secret123")

	yaml := `
instance:
  id: test-gateway
api:
  token: ${TEST_BOT_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Token != "secret123" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "secret123")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load expected error for missing file")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error = %q, want read config file context", err.Error())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "instance: [unterminated")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("error = %q, want parse config yaml context", err.Error())
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-gateway
api:
  token: abc
store:
  driver: postgres
  postgres:
    host: localhost
    name: gateway
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Identify.Version != DefaultGatewayVersion {
		t.Errorf("Identify.Version = %d, want default %d", cfg.Identify.Version, DefaultGatewayVersion)
	}
	if cfg.Shards.IdentifySpacing != DefaultIdentifySpacing {
		t.Errorf("Shards.IdentifySpacing = %v, want default %v", cfg.Shards.IdentifySpacing, DefaultIdentifySpacing)
	}
	if cfg.Connection.BackoffMax != DefaultBackoffMax {
		t.Errorf("Connection.BackoffMax = %v, want default %v", cfg.Connection.BackoffMax, DefaultBackoffMax)
	}
	if cfg.Connection.OutboundQueueSize != DefaultOutboundQueueSize {
		t.Errorf("Connection.OutboundQueueSize = %d, want default %d", cfg.Connection.OutboundQueueSize, DefaultOutboundQueueSize)
	}
	if cfg.Store.Postgres.Port != DefaultDBPort {
		t.Errorf("Store.Postgres.Port = %d, want default %d", cfg.Store.Postgres.Port, DefaultDBPort)
	}
	if cfg.Store.Postgres.MaxConns != DefaultMaxConns {
		t.Errorf("Store.Postgres.MaxConns = %d, want default %d", cfg.Store.Postgres.MaxConns, DefaultMaxConns)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, `
instance:
  id: test-gateway
`)

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("LoadAndValidate expected error for missing token")
	}
	if err.Error() != "validate config: api.token or api.token_path is required" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *GatewayConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			modify:  func(c *GatewayConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing token",
			modify:  func(c *GatewayConfig) { c.API.Token = "" },
			wantErr: "api.token or api.token_path is required",
		},
		{
			name: "token path is enough",
			modify: func(c *GatewayConfig) {
				c.API.Token = ""
				c.API.TokenPath = "/run/secrets/token"
			},
		},
		{
			name:    "unsupported encoding",
			modify:  func(c *GatewayConfig) { c.Identify.Encoding = "etf" },
			wantErr: `identify.encoding "etf" is not supported`,
		},
		{
			name:    "large threshold out of range",
			modify:  func(c *GatewayConfig) { c.Identify.LargeThreshold = 300 },
			wantErr: "identify.large_threshold must be between 50 and 250, got 300",
		},
		{
			name:    "ids without count",
			modify:  func(c *GatewayConfig) { c.Shards.IDs = []int{0} },
			wantErr: "shards.ids requires shards.count",
		},
		{
			name: "id outside range",
			modify: func(c *GatewayConfig) {
				c.Shards.Count = 2
				c.Shards.IDs = []int{0, 2}
			},
			wantErr: "shards.ids entry 2 is outside [0, 2)",
		},
		{
			name: "duplicate id",
			modify: func(c *GatewayConfig) {
				c.Shards.Count = 4
				c.Shards.IDs = []int{1, 1}
			},
			wantErr: "shards.ids entry 1 is duplicated",
		},
		{
			name:    "jitter above one",
			modify:  func(c *GatewayConfig) { c.Connection.HeartbeatJitter = 1.5 },
			wantErr: "connection.heartbeat_jitter must be between 0 and 1, got 1.5",
		},
		{
			name:    "backoff max below base",
			modify:  func(c *GatewayConfig) { c.Connection.BackoffMax = 500 * time.Millisecond },
			wantErr: "connection.backoff_max (500ms) cannot be less than backoff_base (1s)",
		},
		{
			name:    "invalid session wait inverted",
			modify:  func(c *GatewayConfig) { c.Connection.InvalidSessionMaxWait = 500 * time.Millisecond },
			wantErr: "connection.invalid_session_max_wait (500ms) cannot be less than invalid_session_min_wait (1s)",
		},
		{
			name:    "unknown store driver",
			modify:  func(c *GatewayConfig) { c.Store.Driver = "redis" },
			wantErr: `store.driver "redis" is not supported`,
		},
		{
			name: "missing postgres password",
			modify: func(c *GatewayConfig) {
				c.Store.Driver = StoreDriverPostgres
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 4}
			},
			wantErr: "store.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			modify: func(c *GatewayConfig) {
				c.Store.Driver = StoreDriverPostgres
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "store.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "metrics port out of range",
			modify:  func(c *GatewayConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "unknown log level",
			modify:  func(c *GatewayConfig) { c.Log.Level = "trace" },
			wantErr: `log.level "trace" is not supported`,
		},
		{
			name:   "valid config",
			modify: func(c *GatewayConfig) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func validConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		Instance: InstanceConfig{ID: "test"},
		API:      APIConfig{Token: "abc"},
	}
	cfg.applyDefaults()
	return cfg
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
