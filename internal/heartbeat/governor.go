// Package heartbeat implements the liveness contract of a gateway connection.
//
// A Governor owns exactly one timer. The connection goroutine selects on C()
// and calls OnTick when it fires; the governor answers with either a heartbeat
// to send or a verdict that the connection is zombied. One missed ack is
// enough: the owner must replace the connection rather than retry in place.
package heartbeat

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrInvalidInterval is returned by Start for non-positive intervals.
var ErrInvalidInterval = errors.New("heartbeat interval must be positive")

// ActionKind tells the owner what to do after a tick.
type ActionKind int

const (
	// SendHeartbeat means a heartbeat frame must be written now.
	SendHeartbeat ActionKind = iota + 1

	// Zombied means the previous heartbeat was never acknowledged.
	Zombied
)

func (k ActionKind) String() string {
	switch k {
	case SendHeartbeat:
		return "send_heartbeat"
	case Zombied:
		return "zombied"
	default:
		return "unknown"
	}
}

// Action is the result of OnTick.
type Action struct {
	Kind     ActionKind
	Sequence int64 // Last sequence to embed in the heartbeat
	HasSeq   bool  // False means the heartbeat carries null
}

// Governor schedules heartbeats and tracks acknowledgements.
type Governor struct {
	mu          sync.Mutex
	interval    time.Duration
	timer       *time.Timer
	awaitingAck bool
	lastSent    time.Time
	lastAck     time.Time
	latency     time.Duration

	random func() float64
	now    func() time.Time
}

// New creates a stopped Governor.
func New() *Governor {
	return &Governor{
		random: rand.Float64,
		now:    time.Now,
	}
}

// FirstDelay returns interval * (1 - jitterFactor*r), with jitterFactor
// clamped to [0, 1) and r expected in [0, 1).
func FirstDelay(interval time.Duration, jitterFactor, r float64) time.Duration {
	if jitterFactor < 0 {
		jitterFactor = 0
	}
	if jitterFactor >= 1 {
		jitterFactor = 0.999
	}
	d := time.Duration(float64(interval) * (1 - jitterFactor*r))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// Start arms the timer. The first tick fires after a jittered fraction of
// interval, later ticks every interval. Calling Start again replaces the
// previous schedule and clears any pending ack.
func (g *Governor) Start(interval time.Duration, jitterFactor float64) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}
	g.interval = interval
	g.awaitingAck = false
	g.timer = time.NewTimer(FirstDelay(interval, jitterFactor, g.random()))
	return nil
}

// C returns the tick channel, or nil when stopped (blocks forever in select).
func (g *Governor) C() <-chan time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer == nil {
		return nil
	}
	return g.timer.C
}

// OnTick must be called after a value is received from C.
func (g *Governor) OnTick(seq int64, hasSeq bool) Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.awaitingAck {
		return Action{Kind: Zombied}
	}

	g.awaitingAck = true
	g.lastSent = g.now()
	if g.timer != nil {
		g.timer.Reset(g.interval)
	}

	return Action{Kind: SendHeartbeat, Sequence: seq, HasSeq: hasSeq}
}

// Beat records a heartbeat sent outside the schedule, at the peer's request.
// The next scheduled tick moves a full interval out so the ack has time to
// arrive.
func (g *Governor) Beat() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.awaitingAck = true
	g.lastSent = g.now()
	if g.timer != nil {
		g.timer.Reset(g.interval)
	}
}

// OnAck clears the pending acknowledgement. Acks without a send are ignored.
func (g *Governor) OnAck() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.awaitingAck {
		return
	}
	g.awaitingAck = false
	g.lastAck = g.now()
	g.latency = g.lastAck.Sub(g.lastSent)
}

// Stop cancels the timer. Safe to call multiple times.
func (g *Governor) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// AwaitingAck reports whether the last heartbeat is unacknowledged.
func (g *Governor) AwaitingAck() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.awaitingAck
}

// Interval returns the interval passed to Start.
func (g *Governor) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// Latency returns the round trip of the last acknowledged heartbeat.
func (g *Governor) Latency() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latency
}
