package shard

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrAdmissionExhausted is returned when the session start budget is spent.
	ErrAdmissionExhausted = errors.New("session start budget exhausted")

	// ErrCoordinatorClosed is returned to waiters when the coordinator closes.
	ErrCoordinatorClosed = errors.New("coordinator closed")
)

// DefaultIdentifySpacing is the minimum delay between two grants on one slot.
const DefaultIdentifySpacing = 5 * time.Second

// DefaultExpectHold bounds how long grants wait for a lower expected shard
// that has not asked for admission yet.
const DefaultExpectHold = 30 * time.Second

// CoordinatorStats is a point-in-time view of a Coordinator.
type CoordinatorStats struct {
	MaxConcurrency int
	InFlight       int
	Waiting        int
	Remaining      int // -1 when unlimited
	Spacing        time.Duration
	Expected       int // Shards still due to identify before higher ones
}

type slot struct {
	limiter *rate.Limiter // nil when spacing is disabled
	busy    bool
}

type waiter struct {
	shard int
	seq   uint64
	ready chan error // Buffered; receives exactly one result
}

// Coordinator grants identify admission to shards.
//
// All state sits behind one mutex. Grants happen inside dispatch, which runs
// on every request, release, limit change and spacing timer.
type Coordinator struct {
	mu        sync.Mutex
	spacing   time.Duration
	max       int
	slots     []*slot
	holders   map[int]*slot
	waiters   []*waiter // Sorted by shard, then arrival
	seq       uint64
	remaining int
	closed    bool
	expected  map[int]struct{}
	holdUntil time.Time // Zero when expectations never expire
	timer     *time.Timer
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator with maxConcurrency slots. Values
// below one are treated as one; a zero spacing disables the per-slot delay.
func NewCoordinator(maxConcurrency int, spacing time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		spacing:   spacing,
		holders:   make(map[int]*slot),
		expected:  make(map[int]struct{}),
		remaining: -1,
		logger:    logger.With("component", "coordinator"),
	}
	c.grow(max(maxConcurrency, 1))
	return c
}

// RequestAdmission blocks until shardIndex may identify, ctx is done, the
// budget runs out, or the coordinator closes. A nil return must be paired
// with exactly one Release.
func (c *Coordinator) RequestAdmission(ctx context.Context, shardIndex int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	if c.remaining == 0 {
		c.mu.Unlock()
		return ErrAdmissionExhausted
	}

	// A shard re-requesting has given up on its previous grant.
	c.releaseLocked(shardIndex)

	c.seq++
	w := &waiter{shard: shardIndex, seq: c.seq, ready: make(chan error, 1)}
	i, _ := slices.BinarySearchFunc(c.waiters, w, compareWaiters)
	c.waiters = slices.Insert(c.waiters, i, w)
	c.dispatchLocked()
	c.mu.Unlock()

	select {
	case err := <-w.ready:
		return err
	case <-ctx.Done():
	}

	c.mu.Lock()
	if c.removeWaiterLocked(w) {
		c.dispatchLocked()
		c.mu.Unlock()
		return ctx.Err()
	}
	c.mu.Unlock()

	// Resolved concurrently with cancellation; hand back a grant we will not use.
	if err := <-w.ready; err == nil {
		c.Release(shardIndex)
	}
	return ctx.Err()
}

// Release frees the slot held by shardIndex. It is a no-op when the shard
// holds nothing.
func (c *Coordinator) Release(shardIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.releaseLocked(shardIndex) {
		c.dispatchLocked()
	}
}

// RefreshLimits sets the number of concurrent grants. Grants already held
// stay valid; new grants wait until fewer than maxConcurrency are held.
func (c *Coordinator) RefreshLimits(maxConcurrency int) {
	maxConcurrency = max(maxConcurrency, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if maxConcurrency == c.max {
		return
	}
	c.logger.Info("identify concurrency changed",
		"old", c.max,
		"new", maxConcurrency,
	)
	c.grow(maxConcurrency)
	c.dispatchLocked()
}

// SetRemaining sets how many identifies may still be granted. Each grant
// consumes one; at zero every waiter fails with ErrAdmissionExhausted.
// A negative value removes the limit.
func (c *Coordinator) SetRemaining(n int) {
	if n < 0 {
		n = -1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.remaining = n
	c.dispatchLocked()
}

// Close fails all waiters with ErrCoordinatorClosed. Later requests fail
// immediately.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	clear(c.expected)
	c.failWaitersLocked(ErrCoordinatorClosed)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Expect registers shards that are about to identify. Until each of them
// has been granted once or forgotten, a higher shard is not granted ahead
// of it. A positive hold lifts the expectations after that long.
func (c *Coordinator) Expect(ids []int, hold time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		c.expected[id] = struct{}{}
	}
	c.holdUntil = time.Time{}
	if hold > 0 {
		c.holdUntil = time.Now().Add(hold)
	}
	c.dispatchLocked()
}

// Forget drops the expectation for shardIndex, typically because the shard
// stopped before identifying.
func (c *Coordinator) Forget(shardIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.expected[shardIndex]; !ok {
		return
	}
	delete(c.expected, shardIndex)
	c.dispatchLocked()
}

// Stats returns current counters.
func (c *Coordinator) Stats() CoordinatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CoordinatorStats{
		MaxConcurrency: c.max,
		InFlight:       len(c.holders),
		Waiting:        len(c.waiters),
		Remaining:      c.remaining,
		Spacing:        c.spacing,
		Expected:       len(c.expected),
	}
}

// grow sets the limit, adding slots when it rises. Slots beyond the limit
// are kept so their spacing history survives a later increase.
func (c *Coordinator) grow(n int) {
	for len(c.slots) < n {
		s := &slot{}
		if c.spacing > 0 {
			s.limiter = rate.NewLimiter(rate.Every(c.spacing), 1)
		}
		c.slots = append(c.slots, s)
	}
	c.max = n
}

func (c *Coordinator) releaseLocked(shardIndex int) bool {
	s, ok := c.holders[shardIndex]
	if !ok {
		return false
	}
	delete(c.holders, shardIndex)
	s.busy = false
	return true
}

// dispatchLocked grants as many waiters as the limits allow, then arms the
// timer for the earliest slot that is free but still spacing out.
func (c *Coordinator) dispatchLocked() {
	if c.closed {
		return
	}

	for len(c.waiters) > 0 {
		if c.remaining == 0 {
			c.logger.Warn("session start budget exhausted", "waiting", len(c.waiters))
			c.failWaitersLocked(ErrAdmissionExhausted)
			return
		}
		if len(c.holders) >= c.max {
			return
		}

		now := time.Now()
		if wait, held := c.heldBackLocked(c.waiters[0].shard, now); held {
			if wait > 0 {
				c.armLocked(wait)
			}
			return
		}
		s, wait := c.freeSlotLocked(now)
		if s == nil {
			if wait > 0 {
				c.armLocked(wait)
			}
			return
		}

		if s.limiter != nil {
			s.limiter.AllowN(now, 1)
		}
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		s.busy = true
		c.holders[w.shard] = s
		delete(c.expected, w.shard)
		if c.remaining > 0 {
			c.remaining--
		}
		w.ready <- nil

		c.logger.Debug("identify admission granted",
			"shard", w.shard,
			"in_flight", len(c.holders),
			"waiting", len(c.waiters),
		)
	}
}

// heldBackLocked reports whether shard must wait for a lower expected shard,
// and how long until the expectations lapse.
func (c *Coordinator) heldBackLocked(shard int, now time.Time) (time.Duration, bool) {
	if len(c.expected) == 0 {
		return 0, false
	}
	if !c.holdUntil.IsZero() && !now.Before(c.holdUntil) {
		c.logger.Warn("expected shards did not request admission in time",
			"pending", len(c.expected),
		)
		clear(c.expected)
		return 0, false
	}
	for id := range c.expected {
		if id < shard {
			if c.holdUntil.IsZero() {
				return 0, true
			}
			return c.holdUntil.Sub(now), true
		}
	}
	return 0, false
}

// freeSlotLocked returns a slot that can grant now, or the shortest wait
// until a free slot regains its token. Only slots below the limit are used.
func (c *Coordinator) freeSlotLocked(now time.Time) (*slot, time.Duration) {
	var wait time.Duration
	for _, s := range c.slots[:c.max] {
		if s.busy {
			continue
		}
		if s.limiter == nil {
			return s, 0
		}
		tokens := s.limiter.TokensAt(now)
		if tokens >= 1 {
			return s, 0
		}
		d := time.Duration((1 - tokens) * float64(c.spacing))
		if d <= 0 {
			d = time.Millisecond
		}
		if wait == 0 || d < wait {
			wait = d
		}
	}
	return nil, wait
}

func (c *Coordinator) armLocked(d time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.dispatchLocked()
	})
}

func (c *Coordinator) removeWaiterLocked(w *waiter) bool {
	i := slices.Index(c.waiters, w)
	if i < 0 {
		return false
	}
	c.waiters = slices.Delete(c.waiters, i, i+1)
	return true
}

func (c *Coordinator) failWaitersLocked(err error) {
	for _, w := range c.waiters {
		w.ready <- err
	}
	c.waiters = nil
}

func compareWaiters(a, b *waiter) int {
	if n := cmp.Compare(a.shard, b.shard); n != 0 {
		return n
	}
	return cmp.Compare(a.seq, b.seq)
}
