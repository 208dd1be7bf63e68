package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AtsumiFlex/Aura-sub002/internal/backoff"
	"github.com/AtsumiFlex/Aura-sub002/internal/event"
	"github.com/AtsumiFlex/Aura-sub002/internal/metrics"
	"github.com/AtsumiFlex/Aura-sub002/internal/protocol"
	"github.com/AtsumiFlex/Aura-sub002/internal/session"
)

// outboundBurst is how many queued commands may leave back to back.
const outboundBurst = 5

// Admitter grants permission to identify. RequestAdmission blocks until the
// shard may identify; each successful grant is released exactly once.
type Admitter interface {
	RequestAdmission(ctx context.Context, shardIndex int) error
	Release(shardIndex int)
}

// Option configures a Shard.
type Option func(*Shard)

// WithAdmitter sets the identify admission source. Without one, identify
// is sent as soon as Hello arrives.
func WithAdmitter(a Admitter) Option {
	return func(s *Shard) {
		s.admitter = a
	}
}

// WithHandler sets the event handler.
func WithHandler(h event.Handler) Option {
	return func(s *Shard) {
		if h != nil {
			s.handler = h
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Shard) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shard) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Shard keeps one gateway session alive across reconnects.
type Shard struct {
	cfg      ShardConfig
	dialer   Dialer
	admitter Admitter
	handler  event.Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger

	session  *session.State
	backoff  *backoff.Backoff
	outbound *Queue[[]byte]
	limiter  *rate.Limiter
	notify   chan struct{}

	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	// Owned by the Run goroutine
	emitCtx        context.Context // Ends on Close or when Run's ctx ends
	resumable      bool            // Previous teardown kept the session
	protocolErrors int             // Consecutive violations since the last Ready

	mu             sync.RWMutex
	running        bool
	state          State
	connID         string
	readySince     time.Time
	latency        time.Duration
	reconnects     int
	closeResumable bool
}

// NewShard creates a Shard. It does nothing until Run is called.
func NewShard(cfg ShardConfig, dialer Dialer, opts ...Option) *Shard {
	s := &Shard{
		cfg:      cfg,
		dialer:   dialer,
		handler:  event.Discard,
		logger:   slog.Default(),
		session:  session.New(),
		backoff:  backoff.New(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffResetAfter),
		outbound: NewQueue[[]byte](cfg.OutboundQueueSize),
		notify:   make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		emitCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	limit := rate.Inf
	if cfg.SendRatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.SendRatePerMinute))
	}
	s.limiter = rate.NewLimiter(limit, outboundBurst)
	s.logger = s.logger.With("shard", cfg.ID)

	return s
}

// ID returns the shard index.
func (s *Shard) ID() int {
	return s.cfg.ID
}

// Restore seeds the session from a persisted snapshot. The first connection
// resumes when the snapshot holds a session. Must be called before Run.
func (s *Shard) Restore(snap session.Snapshot) {
	s.session.Restore(snap)
	s.resumable = snap.Resumable()
}

// Session returns a copy of the session state.
func (s *Shard) Session() session.Snapshot {
	return s.session.Snapshot()
}

// Run connects and keeps the shard connected until ctx ends, Close is
// called, or a fatal error occurs. A nil return means a clean shutdown.
func (s *Shard) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrShardRunning
	}
	s.running = true
	s.mu.Unlock()

	defer close(s.done)
	defer s.setState(StateDisconnected)
	defer s.discardQueued()

	emitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closeCh:
			cancel()
		case <-emitCtx.Done():
		}
	}()
	s.emitCtx = emitCtx

	s.logger.Info("shard starting", "resume", s.resumable && s.session.CanResume())

	for {
		out := s.connect(ctx)
		if out.stop {
			s.logger.Info("shard stopped")
			return nil
		}
		if out.err != nil {
			s.logger.Error("shard stopped", "error", out.err)
			s.emit(event.Error{Shard: s.cfg.ID, Err: out.err, Fatal: true})
			return out.err
		}

		s.backoff.Observe(out.readyFor)
		s.resumable = out.resumable
		if !out.resumable {
			s.session.Invalidate()
		}

		s.mu.Lock()
		s.reconnects++
		s.mu.Unlock()
		s.metrics.IncReconnect(s.cfg.ID, out.reason)
		s.setState(StateConnecting)

		delay := s.backoff.Next()
		s.logger.Info("attempting reconnection",
			"reason", out.reason,
			"resume", s.resumable && s.session.CanResume(),
			"delay", delay,
			"attempt", s.backoff.Attempts(),
		)

		if !s.sleep(ctx, delay) {
			s.logger.Info("shard stopped")
			return nil
		}
	}
}

// Close asks the shard to stop. With resumable the socket closes with a
// code that keeps the session valid on the peer. Close does not wait.
func (s *Shard) Close(resumable bool) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeResumable = resumable
		s.mu.Unlock()
		close(s.closeCh)
	})
}

// Shutdown closes the shard and waits for Run to return.
func (s *Shard) Shutdown(ctx context.Context, resumable bool) error {
	s.Close(resumable)

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (s *Shard) Done() <-chan struct{} {
	return s.done
}

// Send queues an outbound command. Commands leave in FIFO order once the
// shard is Ready. Never blocks.
func (s *Shard) Send(cmd protocol.Command) error {
	if s.closed() {
		s.metrics.IncOutboundRejected("closed")
		return ErrShardClosed
	}

	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	if err := s.outbound.Push(data); err != nil {
		s.metrics.IncOutboundRejected("queue_full")
		s.logger.Warn("outbound queue full, dropping command", "op", cmd.Opcode())
		return err
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// State returns the current connection state.
func (s *Shard) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Latency returns the last heartbeat round trip.
func (s *Shard) Latency() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latency
}

// Stats returns a snapshot of the shard.
func (s *Shard) Stats() Stats {
	seq, hasSeq := s.session.Sequence()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		ID:          s.cfg.ID,
		State:       s.state,
		ConnID:      s.connID,
		SessionID:   s.session.SessionID(),
		Sequence:    seq,
		HasSequence: hasSeq,
		Latency:     s.latency,
		Reconnects:  s.reconnects,
		Queue:       s.outbound.Stats(),
		ReadySince:  s.readySince,
	}
}

func (s *Shard) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	if st == StateReady {
		s.readySince = time.Now()
	} else {
		s.readySince = time.Time{}
	}
	s.mu.Unlock()

	if prev != st {
		s.metrics.SetShardState(s.cfg.ID, st.String(), stateNames)
		s.logger.Debug("state changed", "from", prev, "to", st)
	}
}

func (s *Shard) setLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
	s.metrics.ObserveHeartbeatLatency(s.cfg.ID, d)
}

// discardQueued drops commands that can no longer be sent.
func (s *Shard) discardQueued() {
	if n := s.outbound.Clear(); n > 0 {
		s.logger.Warn("discarding queued commands", "count", n)
		s.metrics.IncOutboundRejected("discarded")
	}
}

// emit delivers e unless Close has been called. A handler that waits for
// room gives up once the shard is closing.
func (s *Shard) emit(e event.Event) {
	select {
	case <-s.closeCh:
		return
	default:
	}
	if h, ok := s.handler.(event.ContextHandler); ok {
		h.HandleEventContext(s.emitCtx, e)
		return
	}
	s.handler.HandleEvent(e)
}

func (s *Shard) closed() bool {
	select {
	case <-s.closeCh:
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Shard) stopping(ctx context.Context) bool {
	select {
	case <-s.closeCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// shutdownCode returns the close code for a requested stop.
func (s *Shard) shutdownCode() int {
	resumable := s.cfg.ShutdownResumable
	select {
	case <-s.closeCh:
		s.mu.RLock()
		resumable = s.closeResumable
		s.mu.RUnlock()
	default:
	}
	if resumable {
		return protocol.CloseResumeKeep
	}
	return protocol.CloseNormal
}

func (s *Shard) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closeCh:
		return false
	}
}
