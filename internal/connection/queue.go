package connection

import (
	"sync"
)

// Queue is a thread-safe fixed-capacity FIFO. Push fails instead of
// growing or blocking when the queue is full.
type Queue[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int // read position
	tail  int // write position
	count int

	// Stats
	totalReceived int64
	totalSent     int64
	rejected      int64
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{buf: make([]T, capacity)}
}

// Push appends item. Returns ErrQueueFull when the queue is at capacity.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.buf) {
		q.rejected++
		return ErrQueueFull
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.totalReceived++
	return nil
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the oldest item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.buf[q.head]
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.totalSent++
	return item, true
}

// Clear drops every queued item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head, q.tail, q.count = 0, 0, 0
	return n
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// QueueStats holds queue statistics.
type QueueStats struct {
	Len           int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Rejected      int64
}

// Stats returns current queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:           q.count,
		Capacity:      len(q.buf),
		TotalReceived: q.totalReceived,
		TotalSent:     q.totalSent,
		Rejected:      q.rejected,
	}
}
