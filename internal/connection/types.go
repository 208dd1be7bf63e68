package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/AtsumiFlex/Aura-sub002/internal/protocol"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrQueueFull     = errors.New("outbound queue full")
	ErrShardClosed   = errors.New("shard closed")
	ErrShardRunning  = errors.New("shard already running")
	ErrFatalClose    = errors.New("gateway closed the connection with a fatal code")
	ErrHelloTimeout  = errors.New("no hello received")
)

// CloseError is the close frame received from the peer. Connections that
// drop without a close frame are reported with CloseAbnormal.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed: %d", e.Code)
	}
	return fmt.Sprintf("websocket closed: %d %s", e.Code, e.Reason)
}

// Class returns the close code partition.
func (e *CloseError) Class() protocol.CloseClass {
	return protocol.ClassifyClose(e.Code)
}

// ProtocolError is a frame the peer was not allowed to send in the
// current state, or could not be decoded.
type ProtocolError struct {
	State State
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in state %s: %v", e.State, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// State is the connection state of a shard.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateReady
)

// States lists every State, used to reset state gauges.
var States = []State{
	StateDisconnected,
	StateConnecting,
	StateAwaitingHello,
	StateIdentifying,
	StateResuming,
	StateReady,
}

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// stateNames is States as strings.
var stateNames = func() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = s.String()
	}
	return names
}()

// ShardConfig configures a Shard.
type ShardConfig struct {
	ID    int // Shard index
	Count int // Total shard count

	Token          string // Raw bot token, without the "Bot " prefix
	URL            string // Gateway URL from discovery
	Version        int    // Gateway protocol version (query parameter v)
	Encoding       string // Payload encoding (query parameter encoding)
	Intents        protocol.Intents
	Properties     protocol.IdentifyProperties
	LargeThreshold int
	Presence       *protocol.PresenceUpdate

	HeartbeatJitter   float64       // Fraction of the interval used to jitter the first beat
	HelloTimeout      time.Duration // Max wait for Hello after the socket opens
	BackoffBase       time.Duration // First reconnect delay ceiling
	BackoffMax        time.Duration // Reconnect delay cap
	BackoffResetAfter time.Duration // Ready uptime that clears the backoff

	OutboundQueueSize int // Commands buffered while not Ready
	SendRatePerMinute int // Outbound command budget, heartbeats excluded

	InvalidSessionMinWait time.Duration // Bounds of the random wait before re-identifying
	InvalidSessionMaxWait time.Duration

	MaxProtocolErrors int  // Consecutive violations before giving up (0 = never)
	ShutdownResumable bool // Close with a resumable code when the run context ends
}

// DefaultShardConfig returns sensible defaults.
func DefaultShardConfig() ShardConfig {
	return ShardConfig{
		Count:    1,
		Version:  10,
		Encoding: "json",
		Properties: protocol.IdentifyProperties{
			OS:      "linux",
			Browser: "aura",
			Device:  "aura",
		},
		HeartbeatJitter:       0.9,
		HelloTimeout:          20 * time.Second,
		BackoffBase:           1 * time.Second,
		BackoffMax:            60 * time.Second,
		BackoffResetAfter:     60 * time.Second,
		OutboundQueueSize:     32,
		SendRatePerMinute:     110,
		InvalidSessionMinWait: 1 * time.Second,
		InvalidSessionMaxWait: 5 * time.Second,
		MaxProtocolErrors:     5,
	}
}

// Stats is a point-in-time view of a shard.
type Stats struct {
	ID          int
	State       State
	ConnID      string
	SessionID   string
	Sequence    int64
	HasSequence bool
	Latency     time.Duration
	Reconnects  int
	Queue       QueueStats
	ReadySince  time.Time
}
