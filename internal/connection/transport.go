package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AtsumiFlex/Aura-sub002/internal/protocol"
)

// Transport is one open WebSocket to the gateway.
type Transport interface {
	// Messages returns a channel of inbound messages in arrival order.
	Messages() <-chan TimestampedMessage

	// Errors receives exactly one error when the read side ends.
	// Every message read before the error is already on Messages.
	Errors() <-chan error

	// Send writes one text frame.
	Send(data []byte) error

	// Close sends a close frame with code and reason, then closes the socket.
	Close(code int, reason string) error

	// Abort closes the socket without a close frame.
	Abort() error
}

// Dialer opens Transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebsocketDialer dials gateway sockets with gorilla/websocket.
type WebsocketDialer struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64 // Max inbound message size (0 = unlimited)
	BufferSize       int   // Messages channel buffer size
	Logger           *slog.Logger
}

// DefaultWebsocketDialer returns a dialer with sensible defaults.
func DefaultWebsocketDialer(logger *slog.Logger) *WebsocketDialer {
	return &WebsocketDialer{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
		Logger:           logger,
	}
}

// Dial establishes the WebSocket connection and starts its read loop.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bufferSize := d.BufferSize
	if bufferSize < 1 {
		bufferSize = 1
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	t := &wsTransport{
		conn:         conn,
		logger:       logger,
		writeTimeout: writeTimeout,
		messages:     make(chan TimestampedMessage, bufferSize),
		errors:       make(chan error, 1),
		done:         make(chan struct{}),
	}

	go t.readLoop()

	logger.Debug("websocket connected", "url", url)

	return t, nil
}

// wsTransport implements Transport over a gorilla connection.
type wsTransport struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func (t *wsTransport) Messages() <-chan TimestampedMessage {
	return t.messages
}

func (t *wsTransport) Errors() <-chan error {
	return t.errors
}

// Send writes raw bytes to the connection.
func (t *wsTransport) Send(data []byte) error {
	if t.isClosed() {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close gracefully closes the connection.
func (t *wsTransport) Close(code int, reason string) error {
	if !t.markClosed() {
		return nil
	}

	t.writeMu.Lock()
	err := t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		t.logger.Debug("failed to send close frame", "code", code, "error", err)
	}

	return t.conn.Close()
}

// Abort drops the connection without a close frame.
func (t *wsTransport) Abort() error {
	if !t.markClosed() {
		return nil
	}
	return t.conn.Close()
}

func (t *wsTransport) markClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	close(t.done)
	return true
}

func (t *wsTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// readLoop reads messages until the socket fails, then reports why.
// Messages are never dropped: sequence tracking depends on every frame.
func (t *wsTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-t.done:
				t.errors <- ErrAlreadyClosed
				return
			default:
			}

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				err = &CloseError{Code: ce.Code, Reason: ce.Text}
			} else {
				err = &CloseError{Code: protocol.CloseAbnormal, Reason: err.Error()}
			}
			t.errors <- err
			return
		}

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case t.messages <- msg:
		case <-t.done:
			t.errors <- ErrAlreadyClosed
			return
		}
	}
}
