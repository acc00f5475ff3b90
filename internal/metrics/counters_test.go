package metrics

import "testing"

func TestCounters_Snapshot(t *testing.T) {
	var c Counters

	c.Transitions.Add(3)
	c.HeartbeatsSent.Add(2)
	c.HeartbeatTimeouts.Add(1)
	c.AuditViolations.Add(4)

	snap := c.Snapshot()
	if snap.Transitions != 3 {
		t.Errorf("Transitions = %d, want 3", snap.Transitions)
	}
	if snap.HeartbeatsSent != 2 {
		t.Errorf("HeartbeatsSent = %d, want 2", snap.HeartbeatsSent)
	}
	if snap.HeartbeatTimeouts != 1 {
		t.Errorf("HeartbeatTimeouts = %d, want 1", snap.HeartbeatTimeouts)
	}
	if snap.AuditViolations != 4 {
		t.Errorf("AuditViolations = %d, want 4", snap.AuditViolations)
	}
	if snap.ReconnectHooks != 0 {
		t.Errorf("ReconnectHooks = %d, want 0", snap.ReconnectHooks)
	}
}
