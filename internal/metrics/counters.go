package metrics

import "sync/atomic"

// Counters holds the engine's monotonically increasing counters.
// The zero value is ready to use.
type Counters struct {
	Transitions        atomic.Int64
	IllegalTransitions atomic.Int64

	HeartbeatsSent    atomic.Int64
	HeartbeatReplies  atomic.Int64
	HeartbeatTimeouts atomic.Int64
	HeartbeatDrops    atomic.Int64

	ReconnectRequests atomic.Int64
	ReconnectDropped  atomic.Int64
	ReconnectHooks    atomic.Int64
	AttachTimeouts    atomic.Int64

	HealthChecksFailed atomic.Int64
	AuditViolations    atomic.Int64

	DuplicateRegistrations atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Transitions            int64 `json:"transitions"`
	IllegalTransitions     int64 `json:"illegal_transitions"`
	HeartbeatsSent         int64 `json:"heartbeats_sent"`
	HeartbeatReplies       int64 `json:"heartbeat_replies"`
	HeartbeatTimeouts      int64 `json:"heartbeat_timeouts"`
	HeartbeatDrops         int64 `json:"heartbeat_drops"`
	ReconnectRequests      int64 `json:"reconnect_requests"`
	ReconnectDropped       int64 `json:"reconnect_dropped"`
	ReconnectHooks         int64 `json:"reconnect_hooks"`
	AttachTimeouts         int64 `json:"attach_timeouts"`
	HealthChecksFailed     int64 `json:"health_checks_failed"`
	AuditViolations        int64 `json:"audit_violations"`
	DuplicateRegistrations int64 `json:"duplicate_registrations"`
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Transitions:            c.Transitions.Load(),
		IllegalTransitions:     c.IllegalTransitions.Load(),
		HeartbeatsSent:         c.HeartbeatsSent.Load(),
		HeartbeatReplies:       c.HeartbeatReplies.Load(),
		HeartbeatTimeouts:      c.HeartbeatTimeouts.Load(),
		HeartbeatDrops:         c.HeartbeatDrops.Load(),
		ReconnectRequests:      c.ReconnectRequests.Load(),
		ReconnectDropped:       c.ReconnectDropped.Load(),
		ReconnectHooks:         c.ReconnectHooks.Load(),
		AttachTimeouts:         c.AttachTimeouts.Load(),
		HealthChecksFailed:     c.HealthChecksFailed.Load(),
		AuditViolations:        c.AuditViolations.Load(),
		DuplicateRegistrations: c.DuplicateRegistrations.Load(),
	}
}
