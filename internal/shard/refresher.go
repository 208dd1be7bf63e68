package shard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AtsumiFlex/Aura-sub002/internal/api"
)

// Discoverer fetches the gateway URL, shard recommendation and identify
// limits.
type Discoverer interface {
	GetGatewayBot(ctx context.Context) (*api.GatewayBot, error)
}

// RefresherConfig holds refresher settings.
type RefresherConfig struct {
	Interval       time.Duration // Poll interval (default: 10m)
	Timeout        time.Duration // Per-request timeout (default: 10s)
	MaxConcurrency int           // Fixed concurrency; 0 uses the discovered value
}

// DefaultRefresherConfig returns sensible defaults.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval: 10 * time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Refresher periodically re-runs discovery and pushes the identify limits
// into a Coordinator.
type Refresher struct {
	cfg         RefresherConfig
	discovery   Discoverer
	coordinator *Coordinator
	logger      *slog.Logger

	mu          sync.RWMutex
	lastRefresh time.Time
	lastBot     *api.GatewayBot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a new Refresher.
func NewRefresher(cfg RefresherConfig, discovery Discoverer, coordinator *Coordinator, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefresherConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefresherConfig().Timeout
	}
	return &Refresher{
		cfg:         cfg,
		discovery:   discovery,
		coordinator: coordinator,
		logger:      logger.With("component", "limits_refresher"),
	}
}

// Start begins the refresh loop. The first refresh happens after one
// interval, since the caller has just run discovery.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("limits refresher started", "interval", r.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the refresher.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("limits refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRefresh returns the time and result of the last successful refresh.
func (r *Refresher) LastRefresh() (time.Time, *api.GatewayBot) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh, r.lastBot
}

func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(r.ctx); err != nil {
				r.logger.Warn("failed to refresh identify limits", "err", err)
			}
		}
	}
}

// Refresh runs discovery once and applies the result.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	bot, err := r.discovery.GetGatewayBot(ctx)
	if err != nil {
		return err
	}

	limit := bot.SessionStartLimit
	concurrency := limit.MaxConcurrency
	if r.cfg.MaxConcurrency > 0 {
		concurrency = r.cfg.MaxConcurrency
	}
	r.coordinator.RefreshLimits(concurrency)
	r.coordinator.SetRemaining(limit.Remaining)

	r.mu.Lock()
	prev := r.lastBot
	r.lastRefresh = time.Now()
	r.lastBot = bot
	r.mu.Unlock()

	if prev != nil && prev.Shards != bot.Shards {
		r.logger.Info("recommended shard count changed",
			"old", prev.Shards,
			"new", bot.Shards,
		)
	}
	r.logger.Debug("identify limits refreshed",
		"max_concurrency", concurrency,
		"remaining", limit.Remaining,
		"reset_in", limit.ResetIn(),
	)
	return nil
}
