package event

import (
	"encoding/json"
	"time"
)

// Kind tags an Event.
type Kind string

const (
	KindConnected Kind = "connected"
	KindReady     Kind = "ready"
	KindResumed   Kind = "resumed"
	KindDispatch  Kind = "dispatch"
	KindClosing   Kind = "closing"
	KindError     Kind = "error"
	KindDebug     Kind = "debug"
)

// Event is a notification from a shard.
type Event interface {
	Kind() Kind
	ShardID() int
}

// Connected is emitted when a socket opens, before the handshake.
type Connected struct {
	Shard  int
	ConnID string
	URL    string
}

// Ready is emitted after a successful identify.
type Ready struct {
	Shard     int
	SessionID string
	ResumeURL string
	Data      json.RawMessage
}

// Resumed is emitted after a successful resume.
type Resumed struct {
	Shard    int
	Sequence int64
}

// Dispatch carries one peer event.
type Dispatch struct {
	Shard      int
	Seq        int64
	Name       string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// Closing is emitted when a socket is being torn down.
type Closing struct {
	Shard     int
	Code      int
	Reason    string
	Resumable bool
}

// Error reports a failure. Fatal errors stop the shard.
type Error struct {
	Shard int
	Err   error
	Fatal bool
}

// Debug is low-level lifecycle detail.
type Debug struct {
	Shard   int
	Message string
}

func (Connected) Kind() Kind { return KindConnected }
func (Ready) Kind() Kind     { return KindReady }
func (Resumed) Kind() Kind   { return KindResumed }
func (Dispatch) Kind() Kind  { return KindDispatch }
func (Closing) Kind() Kind   { return KindClosing }
func (Error) Kind() Kind     { return KindError }
func (Debug) Kind() Kind     { return KindDebug }

func (e Connected) ShardID() int { return e.Shard }
func (e Ready) ShardID() int     { return e.Shard }
func (e Resumed) ShardID() int   { return e.Shard }
func (e Dispatch) ShardID() int  { return e.Shard }
func (e Closing) ShardID() int   { return e.Shard }
func (e Error) ShardID() int     { return e.Shard }
func (e Debug) ShardID() int     { return e.Shard }
