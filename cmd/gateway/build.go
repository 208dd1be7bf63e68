package main

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AtsumiFlex/Aura-sub002/internal/api"
	"github.com/AtsumiFlex/Aura-sub002/internal/auth"
	"github.com/AtsumiFlex/Aura-sub002/internal/config"
	"github.com/AtsumiFlex/Aura-sub002/internal/connection"
	"github.com/AtsumiFlex/Aura-sub002/internal/protocol"
	"github.com/AtsumiFlex/Aura-sub002/internal/shard"
	"github.com/AtsumiFlex/Aura-sub002/internal/version"
)

// dialBufferSize is the per-connection inbound message buffer.
const dialBufferSize = 1000

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	}))
}

func newAPIClient(cfg *config.GatewayConfig, creds *auth.Credentials, logger *slog.Logger) *api.Client {
	if logger == nil {
		logger = slog.Default()
	}
	return api.NewClient(
		cfg.API.RestURL,
		creds.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithUserAgent(version.UserAgent()),
	)
}

func newDialer(cfg *config.GatewayConfig, logger *slog.Logger) *connection.WebsocketDialer {
	d := connection.DefaultWebsocketDialer(logger)
	d.HandshakeTimeout = cfg.Connection.HandshakeTimeout
	d.WriteTimeout = cfg.Connection.WriteTimeout
	d.ReadLimit = cfg.Connection.ReadLimit
	d.BufferSize = dialBufferSize
	d.Header = http.Header{"User-Agent": {version.UserAgent()}}
	return d
}

// shardConfig builds the per-shard template. ID, Count and URL are set by
// the manager.
func shardConfig(cfg *config.GatewayConfig, token string) connection.ShardConfig {
	sc := connection.DefaultShardConfig()
	sc.Token = token
	sc.Version = cfg.Identify.Version
	sc.Encoding = cfg.Identify.Encoding
	sc.Intents = protocol.Intents(cfg.Identify.Intents)
	sc.LargeThreshold = cfg.Identify.LargeThreshold
	sc.Properties = protocol.IdentifyProperties{
		OS:      cfg.Identify.Properties.OS,
		Browser: cfg.Identify.Properties.Browser,
		Device:  cfg.Identify.Properties.Device,
	}

	conn := cfg.Connection
	sc.HeartbeatJitter = conn.HeartbeatJitter
	sc.HelloTimeout = conn.HelloTimeout
	sc.BackoffBase = conn.BackoffBase
	sc.BackoffMax = conn.BackoffMax
	sc.BackoffResetAfter = conn.BackoffResetAfter
	sc.OutboundQueueSize = conn.OutboundQueueSize
	sc.SendRatePerMinute = conn.SendRatePerMinute
	sc.InvalidSessionMinWait = conn.InvalidSessionMinWait
	sc.InvalidSessionMaxWait = conn.InvalidSessionMaxWait
	sc.MaxProtocolErrors = conn.MaxProtocolErrors
	sc.ShutdownResumable = conn.ShutdownResumable
	return sc
}

func managerConfig(cfg *config.GatewayConfig, token string) shard.ManagerConfig {
	mc := shard.DefaultManagerConfig()
	mc.Shard = shardConfig(cfg, token)
	mc.ShardCount = cfg.Shards.Count
	mc.ShardIDs = cfg.Shards.IDs
	mc.MaxConcurrency = cfg.Shards.MaxConcurrency
	mc.IdentifySpacing = cfg.Shards.IdentifySpacing
	mc.RefreshInterval = cfg.Shards.RefreshInterval
	mc.GatewayURL = cfg.API.GatewayURL
	mc.DiscoveryTimeout = cfg.API.Timeout
	return mc
}
