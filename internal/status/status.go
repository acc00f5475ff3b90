package status

import (
	"fmt"
	"time"
)

// Tier is a coarse health classification.
type Tier int

const (
	TierUnknown Tier = iota
	TierHealthy
	TierDegraded
	TierUnhealthy
)

func (t Tier) String() string {
	switch t {
	case TierHealthy:
		return "healthy"
	case TierDegraded:
		return "degraded"
	case TierUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText lets Tier render as its name in JSON.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Tier thresholds.
const (
	HealthyRoundTrip   = 200 * time.Millisecond
	UnhealthyRoundTrip = 1000 * time.Millisecond
	HealthySyncAge     = 30 * time.Second
	UnhealthySyncAge   = 120 * time.Second
)

// Snapshot is the engine state a summary is derived from.
type Snapshot struct {
	State                string         // Connection state name
	Connected            bool           // A handle is attached
	LastRoundTrip        *time.Duration // nil until the first heartbeat reply
	LastSuccessfulSyncAt time.Time      // zero until the first sync batch
	ConsecutiveFailures  int
	NetworkLabel         string
}

// Summary is the externally visible health report.
type Summary struct {
	Tier              Tier           `json:"tier"`
	State             string         `json:"state"`
	LastRoundTrip     *time.Duration `json:"last_round_trip_ns,omitempty"`
	TimeSinceLastSync *time.Duration `json:"time_since_last_sync_ns,omitempty"`
	NetworkLabel      string         `json:"network_label,omitempty"`
	Text              string         `json:"text"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// Derive classifies a snapshot at the given instant.
func Derive(s Snapshot, now time.Time) Summary {
	sum := Summary{
		State:         s.State,
		LastRoundTrip: s.LastRoundTrip,
		NetworkLabel:  s.NetworkLabel,
		GeneratedAt:   now,
	}

	var sinceSync time.Duration
	haveSync := !s.LastSuccessfulSyncAt.IsZero()
	if haveSync {
		sinceSync = now.Sub(s.LastSuccessfulSyncAt)
		if sinceSync < 0 {
			sinceSync = 0
		}
		sum.TimeSinceLastSync = &sinceSync
	}

	switch {
	case !s.Connected:
		sum.Tier = TierUnhealthy
	case s.LastRoundTrip == nil && !haveSync:
		sum.Tier = TierUnknown
	case (s.LastRoundTrip != nil && *s.LastRoundTrip >= UnhealthyRoundTrip) ||
		(haveSync && sinceSync >= UnhealthySyncAge):
		sum.Tier = TierUnhealthy
	case s.LastRoundTrip != nil && *s.LastRoundTrip < HealthyRoundTrip &&
		haveSync && sinceSync < HealthySyncAge:
		sum.Tier = TierHealthy
	default:
		sum.Tier = TierDegraded
	}

	sum.Text = formatText(sum, s.ConsecutiveFailures)
	return sum
}

// formatText renders the summary line. Durations are rounded so that the
// text only changes when something a reader would notice changes.
func formatText(sum Summary, failures int) string {
	text := fmt.Sprintf("%s (%s)", sum.Tier, sum.State)
	if sum.LastRoundTrip != nil {
		text += fmt.Sprintf(" rtt=%dms", sum.LastRoundTrip.Milliseconds())
	}
	if sum.TimeSinceLastSync != nil {
		text += fmt.Sprintf(" sync=%s ago", roundAge(*sum.TimeSinceLastSync))
	}
	if failures > 0 {
		text += fmt.Sprintf(" failures=%d", failures)
	}
	if sum.NetworkLabel != "" {
		text += " via " + sum.NetworkLabel
	}
	return text
}

func roundAge(d time.Duration) time.Duration {
	if d < time.Minute {
		return d.Truncate(10 * time.Second)
	}
	return d.Truncate(time.Minute)
}
