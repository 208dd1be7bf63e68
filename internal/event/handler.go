package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handler receives shard events.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// ContextHandler is a Handler whose delivery may wait. ctx bounds the wait.
type ContextHandler interface {
	Handler
	HandleEventContext(ctx context.Context, e Event)
}

// Discard drops every event.
var Discard Handler = HandlerFunc(func(Event) {})

// ChannelHandler forwards events into a buffered channel. Session events
// (Dispatch, Ready, Resumed) wait for room so none is ever lost once its
// sequence has been recorded. Other events are dropped and counted when the
// buffer is full.
type ChannelHandler struct {
	ch      chan Event
	done    chan struct{}
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewChannelHandler creates a ChannelHandler with the given buffer size.
func NewChannelHandler(size int) *ChannelHandler {
	if size < 1 {
		size = 1
	}
	return &ChannelHandler{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// HandleEvent enqueues e. Session events block until the consumer makes
// room or the handler is closed.
func (h *ChannelHandler) HandleEvent(e Event) {
	h.HandleEventContext(context.Background(), e)
}

// HandleEventContext is HandleEvent with the wait for room bounded by ctx.
func (h *ChannelHandler) HandleEventContext(ctx context.Context, e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	select {
	case h.ch <- e:
		return
	default:
	}
	if !mustDeliver(e) {
		h.dropped.Add(1)
		return
	}
	select {
	case h.ch <- e:
	case <-h.done:
	case <-ctx.Done():
	}
}

func mustDeliver(e Event) bool {
	switch e.(type) {
	case Dispatch, Ready, Resumed:
		return true
	default:
		return false
	}
}

// Events returns the receive side.
func (h *ChannelHandler) Events() <-chan Event {
	return h.ch
}

// Dropped returns how many lifecycle events were discarded because the
// buffer was full.
func (h *ChannelHandler) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes the channel and releases blocked senders. Later events are
// ignored.
func (h *ChannelHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		h.closed = true
		close(h.ch)
		h.mu.Unlock()
	})
}

// Multi fans an event out to several handlers in order.
func Multi(handlers ...Handler) Handler {
	return HandlerFunc(func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h.HandleEvent(e)
			}
		}
	})
}
