package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.Token == "" && c.API.TokenPath == "" {
		return errors.New("api.token or api.token_path is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Identify.Encoding != "json" {
		return fmt.Errorf("identify.encoding %q is not supported", c.Identify.Encoding)
	}
	if c.Identify.LargeThreshold < 50 || c.Identify.LargeThreshold > 250 {
		return fmt.Errorf("identify.large_threshold must be between 50 and 250, got %d", c.Identify.LargeThreshold)
	}

	if c.Shards.Count < 0 {
		return errors.New("shards.count must be >= 0")
	}
	if len(c.Shards.IDs) > 0 && c.Shards.Count == 0 {
		return errors.New("shards.ids requires shards.count")
	}
	seen := make(map[int]bool, len(c.Shards.IDs))
	for _, id := range c.Shards.IDs {
		if id < 0 || id >= c.Shards.Count {
			return fmt.Errorf("shards.ids entry %d is outside [0, %d)", id, c.Shards.Count)
		}
		if seen[id] {
			return fmt.Errorf("shards.ids entry %d is duplicated", id)
		}
		seen[id] = true
	}
	if c.Shards.MaxConcurrency < 0 {
		return errors.New("shards.max_concurrency must be >= 0")
	}

	conn := c.Connection
	if conn.HeartbeatJitter < 0 || conn.HeartbeatJitter > 1 {
		return fmt.Errorf("connection.heartbeat_jitter must be between 0 and 1, got %v", conn.HeartbeatJitter)
	}
	if conn.BackoffMax < conn.BackoffBase {
		return fmt.Errorf("connection.backoff_max (%v) cannot be less than backoff_base (%v)", conn.BackoffMax, conn.BackoffBase)
	}
	if conn.OutboundQueueSize < 1 {
		return errors.New("connection.outbound_queue_size must be >= 1")
	}
	if conn.SendRatePerMinute < 1 {
		return errors.New("connection.send_rate_per_minute must be >= 1")
	}
	if conn.InvalidSessionMaxWait < conn.InvalidSessionMinWait {
		return fmt.Errorf("connection.invalid_session_max_wait (%v) cannot be less than invalid_session_min_wait (%v)",
			conn.InvalidSessionMaxWait, conn.InvalidSessionMinWait)
	}
	if conn.MaxProtocolErrors < 0 {
		return errors.New("connection.max_protocol_errors must be >= 0")
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported", c.Log.Level)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
