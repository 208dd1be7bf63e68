// Package connection implements one gateway shard: the WebSocket transport
// and the connection state machine that drives it.
//
// A Shard:
//   - Dials the gateway (or the session's resume URL) and waits for Hello
//   - Identifies after admission from the shard coordinator, or resumes
//   - Heartbeats on the interval the peer announces and replaces zombied
//     connections
//   - Reconnects with jittered exponential backoff, resuming when the close
//     code allows it
//   - Queues outbound commands until Ready and flushes them rate limited
//   - Delivers events to an event.Handler in frame order
//
// All state transitions of a shard happen on the goroutine running Run.
package connection
