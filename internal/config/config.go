package config

import "time"

// GatewayConfig is the root configuration for a gateway process.
type GatewayConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Identify   IdentifyConfig   `yaml:"identify"`
	Shards     ShardsConfig     `yaml:"shards"`
	Connection ConnectionConfig `yaml:"connection"`
	Store      StoreConfig      `yaml:"store"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds REST discovery settings and the bot token.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	GatewayURL string        `yaml:"gateway_url"` // Overrides the discovered URL
	Token      string        `yaml:"token"`
	TokenPath  string        `yaml:"token_path"` // Read when token is empty
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// IdentifyConfig holds the identify payload fields.
type IdentifyConfig struct {
	Intents        uint64           `yaml:"intents"`
	Version        int              `yaml:"version"`
	Encoding       string           `yaml:"encoding"`
	LargeThreshold int              `yaml:"large_threshold"`
	Properties     PropertiesConfig `yaml:"properties"`
}

// PropertiesConfig is the connection properties block of identify.
type PropertiesConfig struct {
	OS      string `yaml:"os"`
	Browser string `yaml:"browser"`
	Device  string `yaml:"device"`
}

// ShardsConfig controls how many shards run and how fast they identify.
type ShardsConfig struct {
	Count           int           `yaml:"count"` // 0 uses the recommended count
	IDs             []int         `yaml:"ids"`   // Subset of [0, count); empty runs all
	MaxConcurrency  int           `yaml:"max_concurrency"`
	IdentifySpacing time.Duration `yaml:"identify_spacing"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ConnectionConfig holds per-shard connection settings.
type ConnectionConfig struct {
	HelloTimeout          time.Duration `yaml:"hello_timeout"`
	HeartbeatJitter       float64       `yaml:"heartbeat_jitter"`
	BackoffBase           time.Duration `yaml:"backoff_base"`
	BackoffMax            time.Duration `yaml:"backoff_max"`
	BackoffResetAfter     time.Duration `yaml:"backoff_reset_after"`
	OutboundQueueSize     int           `yaml:"outbound_queue_size"`
	SendRatePerMinute     int           `yaml:"send_rate_per_minute"`
	InvalidSessionMinWait time.Duration `yaml:"invalid_session_min_wait"`
	InvalidSessionMaxWait time.Duration `yaml:"invalid_session_max_wait"`
	MaxProtocolErrors     int           `yaml:"max_protocol_errors"`
	ShutdownResumable     bool          `yaml:"shutdown_resumable"`
	HandshakeTimeout      time.Duration `yaml:"handshake_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	ReadLimit             int64         `yaml:"read_limit"`
}

// StoreConfig selects where session snapshots are persisted.
type StoreConfig struct {
	Driver   string   `yaml:"driver"` // "memory" or "postgres"
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}
