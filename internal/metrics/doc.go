// Package metrics provides Prometheus metrics for the gateway.
//
// Key metrics:
//   - Shard connection state, reconnects by reason and zombie detections
//   - Heartbeat round-trip latency
//   - Dispatch throughput by event name
//   - Admission wait time and session starts by handshake kind
//   - Outbound command rejections
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics
