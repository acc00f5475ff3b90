package model

import "github.com/google/uuid"

// StatusRecord is one emitted health summary.
type StatusRecord struct {
	ID              uuid.UUID // Primary key
	InstanceID      string    // Which client produced the summary
	Tier            string    // healthy, degraded, unhealthy, unknown
	State           string    // Connection state name
	RoundTripMicros *int64    // Last heartbeat round trip (µs), nil if none
	SinceSyncMicros *int64    // Time since last sync batch (µs), nil if none
	NetworkLabel    string    // Active network, empty if unknown
	Text            string    // Human-readable summary line
	RecordedAt      int64     // When the summary was generated (µs since epoch)
}
