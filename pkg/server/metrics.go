package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime websocket connections accepted
	ActiveConnections atomic.Int64 // current open sessions
	TotalDisconnects  atomic.Int64 // total session closures (clean + unclean)

	// Auth counters
	SuccessfulAuths atomic.Int64 // successful logins and auto-logins
	FailedAuths     atomic.Int64 // rejected login and registration attempts

	// Operation counters
	UsersCreated      atomic.Int64 // users registered during this run
	ChannelsCreated   atomic.Int64 // channels created during this run
	MessagesBroadcast atomic.Int64 // chat messages fanned out

	// Fan-out counters
	EventsBroadcast   atomic.Int64 // broadcast events delivered to the bus
	DroppedDeliveries atomic.Int64 // per-session deliveries dropped (closed or stalled)

	// Protocol counters
	ParseFailures atomic.Int64 // frames that failed envelope decoding
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	SuccessfulAuths int64 `json:"successful_auths"`
	FailedAuths     int64 `json:"failed_auths"`

	UsersCreated      int64 `json:"users_created"`
	ChannelsCreated   int64 `json:"channels_created"`
	MessagesBroadcast int64 `json:"messages_broadcast"`

	EventsBroadcast   int64 `json:"events_broadcast"`
	DroppedDeliveries int64 `json:"dropped_deliveries"`

	ParseFailures int64 `json:"parse_failures"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		UsersCreated:      m.UsersCreated.Load(),
		ChannelsCreated:   m.ChannelsCreated.Load(),
		MessagesBroadcast: m.MessagesBroadcast.Load(),
		EventsBroadcast:   m.EventsBroadcast.Load(),
		DroppedDeliveries: m.DroppedDeliveries.Load(),
		ParseFailures:     m.ParseFailures.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"auths_ok", s.SuccessfulAuths,
		"auths_failed", s.FailedAuths,
		"messages", s.MessagesBroadcast,
		"events", s.EventsBroadcast,
		"dropped", s.DroppedDeliveries,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
