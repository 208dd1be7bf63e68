package shard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AtsumiFlex/Aura-sub002/internal/api"
	"github.com/AtsumiFlex/Aura-sub002/internal/connection"
	"github.com/AtsumiFlex/Aura-sub002/internal/event"
	"github.com/AtsumiFlex/Aura-sub002/internal/metrics"
	"github.com/AtsumiFlex/Aura-sub002/internal/protocol"
	"github.com/AtsumiFlex/Aura-sub002/internal/session"
	"github.com/AtsumiFlex/Aura-sub002/internal/store"
)

var (
	// ErrUnknownShard is returned when a command targets a shard that is not running here.
	ErrUnknownShard = errors.New("unknown shard")

	// ErrManagerStarted is returned by a second Start.
	ErrManagerStarted = errors.New("manager already started")

	// ErrNoGatewayURL is returned when discovery fails and no URL is configured.
	ErrNoGatewayURL = errors.New("no gateway url")

	// ErrInvalidShardIDs is returned when a configured shard ID is outside [0, count).
	ErrInvalidShardIDs = errors.New("invalid shard ids")
)

// ManagerConfig holds shard manager settings.
type ManagerConfig struct {
	// Shard is the template for every shard; ID, Count and URL are filled in.
	Shard connection.ShardConfig

	ShardCount       int           // 0 uses the recommended count
	ShardIDs         []int         // Subset to run; empty runs all
	MaxConcurrency   int           // 0 uses the discovered value
	IdentifySpacing  time.Duration // Minimum delay between grants on one slot
	GatewayURL       string        // Overrides the discovered URL
	RefreshInterval  time.Duration // 0 disables the refresher
	DiscoveryTimeout time.Duration
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Shard:            connection.DefaultShardConfig(),
		IdentifySpacing:  DefaultIdentifySpacing,
		RefreshInterval:  10 * time.Minute,
		DiscoveryTimeout: 10 * time.Second,
	}
}

// Stats is a point-in-time view of a Manager.
type Stats struct {
	RunID       string
	ShardCount  int
	Running     int
	Ready       int
	GatewayURL  string
	Coordinator CoordinatorStats
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore sets where session snapshots are loaded from and saved to.
func WithStore(s store.SessionStore) ManagerOption {
	return func(m *Manager) {
		m.store = s
	}
}

// WithEventHandler sets the handler shared by all shards.
func WithEventHandler(h event.Handler) ManagerOption {
	return func(m *Manager) {
		m.handler = h
	}
}

// WithManagerMetrics sets the metrics shared by all shards.
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager owns a Coordinator and the shards admitted through it.
type Manager struct {
	cfg         ManagerConfig
	discovery   Discoverer
	dialer      connection.Dialer
	store       store.SessionStore
	handler     event.Handler
	metrics     *metrics.Metrics
	logger      *slog.Logger
	runID       string
	coordinator *Coordinator
	refresher   *Refresher

	mu      sync.RWMutex
	started bool
	count   int
	url     string
	shards  map[int]*connection.Shard
	ids     []int
	err     error
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewManager creates a Manager. discovery may be nil when cfg carries a
// gateway URL and shard count.
func NewManager(cfg ManagerConfig, discovery Discoverer, dialer connection.Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:       cfg,
		discovery: discovery,
		dialer:    dialer,
		store:     store.NewMemoryStore(),
		handler:   event.Discard,
		logger:    slog.Default(),
		runID:     uuid.New().String(),
		shards:    make(map[int]*connection.Shard),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("run_id", m.runID)
	m.coordinator = NewCoordinator(1, cfg.IdentifySpacing, m.logger)
	return m
}

// Start discovers the gateway, restores saved sessions and starts every
// configured shard. Shards keep running until ctx ends, Stop is called or
// one of them fails fatally.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrManagerStarted
	}

	bot, err := m.discover(ctx)
	if err != nil {
		return err
	}

	concurrency := 1
	url := m.cfg.GatewayURL
	count := m.cfg.ShardCount
	if bot != nil {
		if err := bot.CheckSessionStartLimit(); err != nil {
			return err
		}
		concurrency = bot.SessionStartLimit.MaxConcurrency
		m.coordinator.SetRemaining(bot.SessionStartLimit.Remaining)
		if url == "" {
			url = bot.URL
		}
		if count == 0 {
			count = bot.Shards
		}
	}
	if m.cfg.MaxConcurrency > 0 {
		concurrency = m.cfg.MaxConcurrency
	}
	count = max(count, 1)
	m.coordinator.RefreshLimits(concurrency)

	ids, err := shardIDs(m.cfg.ShardIDs, count)
	if err != nil {
		return err
	}

	snaps := m.loadSessions(ctx, ids, count)

	var identifying []int
	for i, id := range ids {
		cfg := m.cfg.Shard
		cfg.ID = id
		cfg.Count = count
		cfg.URL = url

		sh := connection.NewShard(cfg, m.dialer,
			connection.WithAdmitter(m.coordinator),
			connection.WithHandler(m.handler),
			connection.WithMetrics(m.metrics),
			connection.WithLogger(m.logger),
		)
		if snaps[i].Resumable() {
			sh.Restore(snaps[i])
		} else {
			identifying = append(identifying, id)
		}
		m.shards[id] = sh
	}
	m.ids = ids
	m.count = count
	m.url = url
	m.coordinator.Expect(identifying, DefaultExpectHold)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	for _, id := range ids {
		sh := m.shards[id]
		g.Go(func() error {
			defer m.coordinator.Forget(sh.ID())
			return sh.Run(gctx)
		})
	}
	go func() {
		err := g.Wait()
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		close(m.done)
	}()

	if m.discovery != nil && m.cfg.RefreshInterval > 0 {
		m.refresher = NewRefresher(RefresherConfig{
			Interval:       m.cfg.RefreshInterval,
			Timeout:        m.cfg.DiscoveryTimeout,
			MaxConcurrency: m.cfg.MaxConcurrency,
		}, m.discovery, m.coordinator, m.logger)
		m.refresher.Start(runCtx)
	}

	m.started = true
	m.logger.Info("shard manager started",
		"gateway_url", url,
		"shard_count", count,
		"shards", len(ids),
		"max_concurrency", max(concurrency, 1),
	)
	return nil
}

// Stop closes every shard, waits for them to exit, then saves or deletes
// their sessions. With cfg.Shard.ShutdownResumable the sockets close with
// a resumable code and resumable sessions are saved for the next start.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	started := m.started
	shards := m.sortedShards()
	m.mu.RUnlock()

	if !started {
		return nil
	}

	resumable := m.cfg.Shard.ShutdownResumable
	m.logger.Info("stopping shard manager", "resumable", resumable)

	var errs []error
	if m.refresher != nil {
		if err := m.refresher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop refresher: %w", err))
		}
	}

	for _, sh := range shards {
		sh.Close(resumable)
	}

	select {
	case <-m.done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for shards: %w", ctx.Err()))
	}

	m.coordinator.Close()
	m.cancel()

	for _, sh := range shards {
		if err := m.persist(ctx, sh, resumable); err != nil {
			errs = append(errs, err)
		}
	}

	m.logger.Info("shard manager stopped")
	return errors.Join(errs...)
}

// Done is closed once every shard has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the first fatal shard error after Done is closed.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Coordinator returns the admission coordinator.
func (m *Manager) Coordinator() *Coordinator {
	return m.coordinator
}

// Shard returns the shard with the given index, if it runs here.
func (m *Manager) Shard(id int) (*connection.Shard, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sh, ok := m.shards[id]
	return sh, ok
}

// Send queues cmd on the given shard.
func (m *Manager) Send(shardID int, cmd protocol.Command) error {
	sh, ok := m.Shard(shardID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShard, shardID)
	}
	return sh.Send(cmd)
}

// ShardFor returns the shard index that receives events for guildID.
func (m *Manager) ShardFor(guildID uint64) int {
	m.mu.RLock()
	count := m.count
	m.mu.RUnlock()
	return ShardForGuild(guildID, count)
}

// SendToGuild queues cmd on the shard that owns guildID.
func (m *Manager) SendToGuild(guildID uint64, cmd protocol.Command) error {
	return m.Send(m.ShardFor(guildID), cmd)
}

// Stats returns aggregate counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	shards := m.sortedShards()
	stats := Stats{
		RunID:      m.runID,
		ShardCount: m.count,
		GatewayURL: m.url,
	}
	m.mu.RUnlock()

	for _, sh := range shards {
		switch sh.State() {
		case connection.StateDisconnected:
		case connection.StateReady:
			stats.Ready++
			stats.Running++
		default:
			stats.Running++
		}
	}
	stats.Coordinator = m.coordinator.Stats()
	return stats
}

// ShardStats returns per-shard stats ordered by shard index.
func (m *Manager) ShardStats() []connection.Stats {
	m.mu.RLock()
	shards := m.sortedShards()
	m.mu.RUnlock()

	out := make([]connection.Stats, 0, len(shards))
	for _, sh := range shards {
		out = append(out, sh.Stats())
	}
	return out
}

// ShardForGuild maps a guild snowflake to a shard index.
func ShardForGuild(guildID uint64, count int) int {
	if count < 1 {
		return 0
	}
	return int((guildID >> 22) % uint64(count))
}

// discover runs discovery once. Failure falls back to one identify at a
// time against the configured URL.
func (m *Manager) discover(ctx context.Context) (*api.GatewayBot, error) {
	if m.discovery == nil {
		if m.cfg.GatewayURL == "" {
			return nil, ErrNoGatewayURL
		}
		return nil, nil
	}

	dctx := ctx
	if m.cfg.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, m.cfg.DiscoveryTimeout)
		defer cancel()
	}

	bot, err := m.discovery.GetGatewayBot(dctx)
	if err == nil {
		return bot, nil
	}
	if m.cfg.GatewayURL == "" {
		return nil, fmt.Errorf("discover gateway: %w", err)
	}

	m.logger.Warn("gateway discovery failed, identifying one shard at a time",
		"err", err,
		"gateway_url", m.cfg.GatewayURL,
	)
	return nil, nil
}

// loadSessions fetches saved snapshots concurrently. A failed load only
// costs that shard its resume.
func (m *Manager) loadSessions(ctx context.Context, ids []int, count int) []session.Snapshot {
	snaps := make([]session.Snapshot, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			snap, ok, err := m.store.Load(ctx, id, count)
			if err != nil {
				m.logger.Warn("failed to load session, starting fresh",
					"shard", id,
					"err", err,
				)
				return nil
			}
			if ok {
				snaps[i] = snap
			}
			return nil
		})
	}
	g.Wait()

	restored := 0
	for _, snap := range snaps {
		if snap.Resumable() {
			restored++
		}
	}
	if restored > 0 {
		m.logger.Info("restored saved sessions", "count", restored)
	}
	return snaps
}

func (m *Manager) persist(ctx context.Context, sh *connection.Shard, resumable bool) error {
	snap := sh.Session()
	if resumable && snap.Resumable() {
		if err := m.store.Save(ctx, sh.ID(), m.count, snap); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	}
	if err := m.store.Delete(ctx, sh.ID()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// sortedShards must be called with mu held.
func (m *Manager) sortedShards() []*connection.Shard {
	out := make([]*connection.Shard, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.shards[id])
	}
	return out
}

func shardIDs(configured []int, count int) ([]int, error) {
	if len(configured) == 0 {
		ids := make([]int, count)
		for i := range ids {
			ids[i] = i
		}
		return ids, nil
	}

	ids := slices.Clone(configured)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	for _, id := range ids {
		if id < 0 || id >= count {
			return nil, fmt.Errorf("%w: %d is outside [0, %d)", ErrInvalidShardIDs, id, count)
		}
	}
	return ids, nil
}
