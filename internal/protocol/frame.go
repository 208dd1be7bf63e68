package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ErrMalformedFrame is returned when an inbound frame cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the envelope of every gateway message.
type Frame struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Message is an inbound frame decoded into one of its variants:
// Hello, HeartbeatAck, HeartbeatRequest, Reconnect, InvalidSession,
// Dispatch or Unrecognized.
type Message interface {
	Opcode() Opcode
}

// Hello is the first frame of every connection.
type Hello struct {
	HeartbeatInterval time.Duration
}

// HeartbeatAck acknowledges the last heartbeat.
type HeartbeatAck struct{}

// HeartbeatRequest asks the client to heartbeat immediately.
type HeartbeatRequest struct{}

// Reconnect asks the client to reconnect and resume.
type Reconnect struct{}

// InvalidSession rejects an identify or resume.
type InvalidSession struct {
	Resumable bool
}

// Dispatch carries an event.
type Dispatch struct {
	Seq  int64
	Name string
	Data json.RawMessage
}

// Unrecognized is any opcode this package does not model.
type Unrecognized struct {
	Op  Opcode
	Raw []byte
}

func (Hello) Opcode() Opcode            { return OpHello }
func (HeartbeatAck) Opcode() Opcode     { return OpHeartbeatAck }
func (HeartbeatRequest) Opcode() Opcode { return OpHeartbeat }
func (Reconnect) Opcode() Opcode        { return OpReconnect }
func (InvalidSession) Opcode() Opcode   { return OpInvalidSession }
func (Dispatch) Opcode() Opcode         { return OpDispatch }
func (u Unrecognized) Opcode() Opcode   { return u.Op }

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Decode parses a raw frame into its Message variant.
func Decode(data []byte) (Message, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch f.Op {
	case OpHello:
		var h helloData
		if err := json.Unmarshal(f.D, &h); err != nil {
			return nil, fmt.Errorf("%w: hello: %v", ErrMalformedFrame, err)
		}
		if h.HeartbeatInterval <= 0 {
			return nil, fmt.Errorf("%w: hello: heartbeat_interval %d", ErrMalformedFrame, h.HeartbeatInterval)
		}
		return Hello{HeartbeatInterval: time.Duration(h.HeartbeatInterval) * time.Millisecond}, nil

	case OpHeartbeatAck:
		return HeartbeatAck{}, nil

	case OpHeartbeat:
		return HeartbeatRequest{}, nil

	case OpReconnect:
		return Reconnect{}, nil

	case OpInvalidSession:
		var resumable bool
		if len(f.D) > 0 && !isNull(f.D) {
			if err := json.Unmarshal(f.D, &resumable); err != nil {
				return nil, fmt.Errorf("%w: invalid session: %v", ErrMalformedFrame, err)
			}
		}
		return InvalidSession{Resumable: resumable}, nil

	case OpDispatch:
		if f.S == nil {
			return nil, fmt.Errorf("%w: dispatch %q without sequence", ErrMalformedFrame, f.T)
		}
		if f.T == "" {
			return nil, fmt.Errorf("%w: dispatch without event name", ErrMalformedFrame)
		}
		return Dispatch{Seq: *f.S, Name: f.T, Data: f.D}, nil

	default:
		return Unrecognized{Op: f.Op, Raw: data}, nil
	}
}

// Encode wraps d in a frame with the given opcode.
func Encode(op Opcode, d any) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	return json.Marshal(Frame{Op: op, D: raw})
}

// EncodeHeartbeat builds a heartbeat frame carrying seq, or null when the
// connection has not seen a dispatch yet.
func EncodeHeartbeat(seq int64, hasSeq bool) ([]byte, error) {
	if !hasSeq {
		return Encode(OpHeartbeat, nil)
	}
	return Encode(OpHeartbeat, seq)
}

// GatewayURL adds the version and encoding query parameters to base.
func GatewayURL(base string, version int, encoding string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	if version > 0 {
		q.Set("v", strconv.Itoa(version))
	}
	if encoding != "" {
		q.Set("encoding", encoding)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
