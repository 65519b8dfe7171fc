package server

import (
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/pico-http/internal/response"
)

// Metrics holds connection and request counters. Fields are atomic so a
// status handler or another goroutine can read them while the loop runs.
type Metrics struct {
	ConnectionsAccepted atomic.Int64
	ConnectionsRejected atomic.Int64
	ConnectionsClosed   atomic.Int64
	ActiveConnections   atomic.Int64

	RequestsTotal atomic.Int64
	Errors4xx     atomic.Int64
	Errors5xx     atomic.Int64
	Truncations   atomic.Int64

	Timeouts    atomic.Int64
	WriteErrors atomic.Int64
	Overshoots  atomic.Int64
	BytesQueued atomic.Int64
	BytesAcked  atomic.Int64

	// Simplified latency tracking: accept to fully drained.
	TotalLatencyNs atomic.Int64
	Drained        atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordResponse records a rendered response.
func (m *Metrics) RecordResponse(code response.StatusCode, queued int, truncated bool) {
	m.RequestsTotal.Add(1)
	m.BytesQueued.Add(int64(queued))
	if truncated {
		m.Truncations.Add(1)
	}

	switch {
	case code.IsClientError():
		m.Errors4xx.Add(1)
	case code.IsServerError():
		m.Errors5xx.Add(1)
	}
}

// RecordDrained records a connection whose response was fully
// acknowledged.
func (m *Metrics) RecordDrained(d time.Duration) {
	m.Drained.Add(1)
	m.TotalLatencyNs.Add(d.Nanoseconds())
}

// AverageLatency returns the mean accept-to-drained time.
func (m *Metrics) AverageLatency() time.Duration {
	n := m.Drained.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(m.TotalLatencyNs.Load() / n)
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	ConnectionsAccepted int64         `json:"connections_accepted"`
	ConnectionsRejected int64         `json:"connections_rejected"`
	ConnectionsClosed   int64         `json:"connections_closed"`
	ActiveConnections   int64         `json:"active_connections"`
	RequestsTotal       int64         `json:"requests_total"`
	Errors4xx           int64         `json:"errors_4xx"`
	Errors5xx           int64         `json:"errors_5xx"`
	Truncations         int64         `json:"truncations"`
	Timeouts            int64         `json:"timeouts"`
	WriteErrors         int64         `json:"write_errors"`
	Overshoots          int64         `json:"overshoots"`
	BytesQueued         int64         `json:"bytes_queued"`
	BytesAcked          int64         `json:"bytes_acked"`
	AverageLatency      time.Duration `json:"average_latency_ns"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionsAccepted: m.ConnectionsAccepted.Load(),
		ConnectionsRejected: m.ConnectionsRejected.Load(),
		ConnectionsClosed:   m.ConnectionsClosed.Load(),
		ActiveConnections:   m.ActiveConnections.Load(),
		RequestsTotal:       m.RequestsTotal.Load(),
		Errors4xx:           m.Errors4xx.Load(),
		Errors5xx:           m.Errors5xx.Load(),
		Truncations:         m.Truncations.Load(),
		Timeouts:            m.Timeouts.Load(),
		WriteErrors:         m.WriteErrors.Load(),
		Overshoots:          m.Overshoots.Load(),
		BytesQueued:         m.BytesQueued.Load(),
		BytesAcked:          m.BytesAcked.Load(),
		AverageLatency:      m.AverageLatency(),
	}
}
