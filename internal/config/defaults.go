package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL               = "https://discord.com/api/v10"
	DefaultAPITimeout            = 10 * time.Second
	DefaultMaxRetries            = 3
	DefaultGatewayVersion        = 10
	DefaultEncoding              = "json"
	DefaultLargeThreshold        = 50
	DefaultPropertiesOS          = "linux"
	DefaultPropertiesBrowser     = "aura"
	DefaultPropertiesDevice      = "aura"
	DefaultIdentifySpacing       = 5 * time.Second
	DefaultRefreshInterval       = 10 * time.Minute
	DefaultHelloTimeout          = 20 * time.Second
	DefaultHeartbeatJitter       = 0.9
	DefaultBackoffBase           = 1 * time.Second
	DefaultBackoffMax            = 60 * time.Second
	DefaultBackoffResetAfter     = 60 * time.Second
	DefaultOutboundQueueSize     = 32
	DefaultSendRatePerMinute     = 110
	DefaultInvalidSessionMinWait = 1 * time.Second
	DefaultInvalidSessionMaxWait = 5 * time.Second
	DefaultMaxProtocolErrors     = 5
	DefaultHandshakeTimeout      = 10 * time.Second
	DefaultWriteTimeout          = 10 * time.Second
	DefaultReadLimit             = 16 << 20
	DefaultStoreDriver           = StoreDriverMemory
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 4
	DefaultMinConns              = 1
	DefaultMetricsPort           = 9090
	DefaultMetricsPath           = "/metrics"
	DefaultMetricsNamespace      = "gateway"
	DefaultLogLevel              = "info"
)

// Store drivers.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

func (c *GatewayConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Identify defaults
	if c.Identify.Version == 0 {
		c.Identify.Version = DefaultGatewayVersion
	}
	if c.Identify.Encoding == "" {
		c.Identify.Encoding = DefaultEncoding
	}
	if c.Identify.LargeThreshold == 0 {
		c.Identify.LargeThreshold = DefaultLargeThreshold
	}
	if c.Identify.Properties.OS == "" {
		c.Identify.Properties.OS = DefaultPropertiesOS
	}
	if c.Identify.Properties.Browser == "" {
		c.Identify.Properties.Browser = DefaultPropertiesBrowser
	}
	if c.Identify.Properties.Device == "" {
		c.Identify.Properties.Device = DefaultPropertiesDevice
	}

	// Shards defaults
	if c.Shards.IdentifySpacing == 0 {
		c.Shards.IdentifySpacing = DefaultIdentifySpacing
	}
	if c.Shards.RefreshInterval == 0 {
		c.Shards.RefreshInterval = DefaultRefreshInterval
	}

	// Connection defaults
	conn := &c.Connection
	if conn.HelloTimeout == 0 {
		conn.HelloTimeout = DefaultHelloTimeout
	}
	if conn.HeartbeatJitter == 0 {
		conn.HeartbeatJitter = DefaultHeartbeatJitter
	}
	if conn.BackoffBase == 0 {
		conn.BackoffBase = DefaultBackoffBase
	}
	if conn.BackoffMax == 0 {
		conn.BackoffMax = DefaultBackoffMax
	}
	if conn.BackoffResetAfter == 0 {
		conn.BackoffResetAfter = DefaultBackoffResetAfter
	}
	if conn.OutboundQueueSize == 0 {
		conn.OutboundQueueSize = DefaultOutboundQueueSize
	}
	if conn.SendRatePerMinute == 0 {
		conn.SendRatePerMinute = DefaultSendRatePerMinute
	}
	if conn.InvalidSessionMinWait == 0 {
		conn.InvalidSessionMinWait = DefaultInvalidSessionMinWait
	}
	if conn.InvalidSessionMaxWait == 0 {
		conn.InvalidSessionMaxWait = DefaultInvalidSessionMaxWait
	}
	if conn.MaxProtocolErrors == 0 {
		conn.MaxProtocolErrors = DefaultMaxProtocolErrors
	}
	if conn.HandshakeTimeout == 0 {
		conn.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if conn.WriteTimeout == 0 {
		conn.WriteTimeout = DefaultWriteTimeout
	}
	if conn.ReadLimit == 0 {
		conn.ReadLimit = DefaultReadLimit
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Driver == StoreDriverPostgres {
		applyDBDefaults(&c.Store.Postgres)
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
