package connection

import (
	"fmt"
	"time"
)

// auditLoop periodically checks the manager's invariants.
func (m *manager) auditLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.AuditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.audit()
		}
	}
}

// audit logs and counts invariant violations. It never repairs state.
func (m *manager) audit() []string {
	m.mu.Lock()
	violations := m.checkInvariantsLocked()
	m.mu.Unlock()

	for _, v := range violations {
		m.counters.AuditViolations.Add(1)
		m.logger.Error("invariant violated", "violation", v)
	}
	return violations
}

func (m *manager) checkInvariantsLocked() []string {
	var violations []string

	if hasHandle := m.handle != nil; hasHandle != m.state.HasHandle() {
		violations = append(violations,
			fmt.Sprintf("handle present=%t in state %s", hasHandle, m.state))
	}
	if m.heartbeat != nil && !m.state.HasHandle() {
		violations = append(violations,
			fmt.Sprintf("heartbeat %d outstanding in state %s", m.heartbeat.RequestID, m.state))
	}
	if (m.heartbeat != nil) != (m.pongTimer != nil) {
		violations = append(violations, "heartbeat record and pong timer out of step")
	}
	if m.attempt != nil && (!m.attempt.InFlight || m.attemptCancel == nil) {
		violations = append(violations,
			fmt.Sprintf("attempt %s recorded but not in flight", m.attempt.ID))
	}
	if m.health.ConsecutiveFailures >= m.cfg.DropThreshold {
		violations = append(violations,
			fmt.Sprintf("consecutive failures %d at or above threshold %d",
				m.health.ConsecutiveFailures, m.cfg.DropThreshold))
	}
	if m.state.HasHandle() != (m.probeCancel != nil) && !m.stopped {
		violations = append(violations,
			fmt.Sprintf("heartbeat loop running=%t in state %s", m.probeCancel != nil, m.state))
	}

	return violations
}
