package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AtsumiFlex/Aura-sub002/internal/connection"
	"github.com/AtsumiFlex/Aura-sub002/internal/shard"
)

// shardSource is the part of shard.Manager the health endpoints read.
type shardSource interface {
	Stats() shard.Stats
	ShardStats() []connection.Stats
	Done() <-chan struct{}
}

type shardStatus struct {
	ID         int         `json:"id"`
	State      string      `json:"state"`
	ConnID     string      `json:"conn_id,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	Sequence   *int64      `json:"sequence,omitempty"`
	LatencyMS  int64       `json:"latency_ms"`
	Reconnects int         `json:"reconnects"`
	Queue      queueStatus `json:"queue"`
	ReadySince time.Time   `json:"ready_since,omitzero"`
}

type queueStatus struct {
	Len      int   `json:"len"`
	Capacity int   `json:"capacity"`
	Sent     int64 `json:"sent"`
	Rejected int64 `json:"rejected"`
}

// createHealthHandler creates the HTTP handler for health checks, shard
// debugging and Prometheus scraping.
func createHealthHandler(src shardSource, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := src.Stats()
		total := len(src.ShardStats())

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["shards"] = map[string]any{
			"total":   total,
			"running": stats.Running,
			"ready":   stats.Ready,
		}
		health.Components["identify"] = map[string]any{
			"max_concurrency": stats.Coordinator.MaxConcurrency,
			"in_flight":       stats.Coordinator.InFlight,
			"waiting":         stats.Coordinator.Waiting,
			"remaining":       stats.Coordinator.Remaining,
			"expected":        stats.Coordinator.Expected,
		}

		select {
		case <-src.Done():
			health.Status = "unhealthy"
		default:
			if total == 0 || stats.Ready < total {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/shards", func(w http.ResponseWriter, r *http.Request) {
		all := src.ShardStats()
		out := make([]shardStatus, 0, len(all))
		for _, st := range all {
			s := shardStatus{
				ID:         st.ID,
				State:      st.State.String(),
				ConnID:     st.ConnID,
				SessionID:  st.SessionID,
				LatencyMS:  st.Latency.Milliseconds(),
				Reconnects: st.Reconnects,
				Queue: queueStatus{
					Len:      st.Queue.Len,
					Capacity: st.Queue.Capacity,
					Sent:     st.Queue.TotalSent,
					Rejected: st.Queue.Rejected,
				},
				ReadySince: st.ReadySince,
			}
			if st.HasSequence {
				seq := st.Sequence
				s.Sequence = &seq
			}
			out = append(out, s)
		}

		stats := src.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"run_id":      stats.RunID,
			"gateway_url": stats.GatewayURL,
			"shard_count": stats.ShardCount,
			"shards":      out,
		})
	})

	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
