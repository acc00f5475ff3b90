package connection

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RequestReconnection starts a reconnection sequence. A request while an
// attempt is in flight is dropped, not queued.
func (m *manager) RequestReconnection(reason string) bool {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return false
	}
	if m.attempt != nil {
		current := m.attempt.ID
		m.mu.Unlock()
		m.counters.ReconnectDropped.Add(1)
		m.logger.Info("reconnection already in flight, dropping request",
			"reason", reason,
			"attempt", current,
		)
		return false
	}

	att := &ReconnectionAttempt{
		ID:          uuid.New(),
		Reason:      reason,
		ScheduledAt: time.Now(),
		InFlight:    true,
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.attempt = att
	m.attemptCancel = cancel

	var notBefore time.Time
	if !m.lastAttemptEnd.IsZero() {
		notBefore = m.lastAttemptEnd.Add(m.cfg.MinSpacing)
	}

	m.wg.Add(1)
	m.mu.Unlock()

	m.counters.ReconnectRequests.Add(1)
	m.logger.Info("reconnection requested", "reason", reason, "attempt", att.ID)

	go m.runAttempt(ctx, att, notBefore)
	return true
}

// CancelReconnection abandons the in-flight sequence. From Reconnecting the
// manager returns to Disconnected.
func (m *manager) CancelReconnection() {
	m.mu.Lock()
	var fx effects
	m.clearAttemptLocked("cancelled")
	if m.state == Reconnecting {
		m.transitionLocked(Disconnected, "reconnection cancelled", &fx)
		m.publishLocked(&fx)
	}
	m.mu.Unlock()

	m.waitForHook()
	m.apply(fx)
}

// fireHook calls the reconnection hook if att is still the live attempt.
// hookMu is held across the check and the call, so a Stop or
// CancelReconnection that cleared the attempt first suppresses the hook,
// and one that cleared it later waits for the hook to return.
func (m *manager) fireHook(ctx context.Context, att *ReconnectionAttempt, logger *slog.Logger) bool {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()

	m.mu.Lock()
	current := m.attempt == att && ctx.Err() == nil
	m.mu.Unlock()
	if !current {
		return false
	}

	m.counters.ReconnectHooks.Add(1)
	logger.Info("requesting new connection")
	if m.onReconnect != nil {
		m.onReconnect(att.Reason)
	}
	return true
}

// waitForHook returns once no reconnection hook call is running.
func (m *manager) waitForHook() {
	m.hookMu.Lock()
	m.hookMu.Unlock()
}

// clearAttemptLocked ends the in-flight attempt, if any, and stamps the
// attempt end used for spacing.
func (m *manager) clearAttemptLocked(outcome string) {
	m.lastAttemptEnd = time.Now()
	if m.attempt == nil {
		return
	}
	m.attemptCancel()
	m.logger.Debug("reconnection attempt ended",
		"attempt", m.attempt.ID,
		"reason", m.attempt.Reason,
		"outcome", outcome,
	)
	m.attempt = nil
	m.attemptCancel = nil
}

// runAttempt waits out the spacing floor, confirms the backend is reachable,
// asks the owner for a new connection and waits for it to be attached.
func (m *manager) runAttempt(ctx context.Context, att *ReconnectionAttempt, notBefore time.Time) {
	defer m.wg.Done()

	logger := m.logger.With("attempt", att.ID, "reason", att.Reason)

	if !sleepCtx(ctx, time.Until(notBefore)) {
		return
	}

	for {
		checkCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
		healthy := m.checker.CheckHealthy(checkCtx)
		cancel()

		if ctx.Err() != nil {
			return
		}
		if healthy {
			break
		}

		m.counters.HealthChecksFailed.Add(1)
		logger.Warn("backend unreachable, waiting to recheck",
			"recheck", m.cfg.UnhealthyRecheck,
			"error", &Error{Kind: KindBackendUnreachable, Op: "reconnect"},
		)
		if !sleepCtx(ctx, m.cfg.UnhealthyRecheck) {
			return
		}
	}

	if !sleepCtx(ctx, m.cfg.SettleDelay) {
		return
	}

	if !m.fireHook(ctx, att, logger) {
		return
	}

	if !sleepCtx(ctx, m.cfg.AttachTimeout) {
		return
	}

	m.mu.Lock()
	if m.attempt != att {
		m.mu.Unlock()
		return
	}
	m.clearAttemptLocked("attach timeout")
	retry := !m.state.HasHandle() && m.state != Connecting
	m.mu.Unlock()

	m.counters.AttachTimeouts.Add(1)
	logger.Warn("no connection attached before timeout", "timeout", m.cfg.AttachTimeout)

	if retry {
		m.RequestReconnection(att.Reason)
	}
}
