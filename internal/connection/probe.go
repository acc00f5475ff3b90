package connection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rickgao/syncwatch/internal/router"
)

// startProbeLocked starts the heartbeat loop for connection generation gen.
func (m *manager) startProbeLocked(gen uint64) {
	if m.stopped {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.probeCancel = cancel
	m.wake = make(chan struct{}, 1)

	m.wg.Add(1)
	go m.probeLoop(ctx, gen, m.wake)
}

// stopProbeLocked cancels the heartbeat loop and any pending pong timeout.
func (m *manager) stopProbeLocked() {
	if m.probeCancel != nil {
		m.probeCancel()
		m.probeCancel = nil
	}
	if m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
	m.heartbeat = nil
	m.wake = nil
}

// probeLoop sends a heartbeat every interval until ctx is cancelled.
func (m *manager) probeLoop(ctx context.Context, gen uint64, wake <-chan struct{}) {
	defer m.wg.Done()

	for {
		timer := time.NewTimer(m.interval())

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}

		m.tick(gen)
	}
}

// interval returns the heartbeat cadence for the current visibility.
func (m *manager) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.foreground {
		return m.cfg.ForegroundInterval
	}
	return m.cfg.BackgroundInterval
}

// tick sends a heartbeat if one is due.
func (m *manager) tick(gen uint64) {
	m.mu.Lock()
	env, ok := m.prepareHeartbeatLocked(gen)
	m.mu.Unlock()

	if ok {
		m.sendHeartbeat(env)
	}
}

// prepareHeartbeatLocked records a new heartbeat and arms its pong timeout.
// It returns false when the connection is not attached, no sync batch has
// been seen on it yet, or a heartbeat is already outstanding.
func (m *manager) prepareHeartbeatLocked(gen uint64) ([]byte, bool) {
	if gen != m.generation || !m.state.HasHandle() || !m.batchSeen || m.heartbeat != nil {
		return nil, false
	}

	m.nextRequestID++
	id := m.nextRequestID

	env, err := json.Marshal(Envelope{
		Command:   CommandPing,
		RequestID: id,
		Data:      HeartbeatData{LastReceivedID: m.lastReceivedID},
	})
	if err != nil {
		m.logger.Error("failed to encode heartbeat", "error", err)
		return nil, false
	}

	m.heartbeat = &HeartbeatRecord{RequestID: id, SentAt: time.Now()}
	m.pongTimer = time.AfterFunc(m.cfg.PongTimeout, func() {
		m.onPongTimeout(gen, id)
	})
	return env, true
}

// sendHeartbeat writes the envelope through the router's outbound path.
// A failed write is left to the pong timeout.
func (m *manager) sendHeartbeat(env []byte) {
	if !m.router.SendOutbound(env) {
		m.logger.Debug("heartbeat not sent",
			"error", &Error{Kind: KindTransportUnavailable, Op: "heartbeat"},
		)
		return
	}
	m.counters.HeartbeatsSent.Add(1)
}

// onPongTimeout handles an unanswered heartbeat.
func (m *manager) onPongTimeout(gen uint64, id int64) {
	m.mu.Lock()
	if gen != m.generation || m.heartbeat == nil || m.heartbeat.RequestID != id {
		m.mu.Unlock()
		return
	}
	m.heartbeat = nil
	m.pongTimer = nil
	m.health.ConsecutiveFailures++
	failures := m.health.ConsecutiveFailures
	m.counters.HeartbeatTimeouts.Add(1)

	m.logger.Warn("heartbeat timed out",
		"request_id", id,
		"failures", failures,
		"error", &Error{Kind: KindHeartbeatTimeout, Op: "heartbeat"},
	)

	var fx effects
	var env []byte
	var rush bool

	if failures >= m.cfg.DropThreshold {
		m.health.ConsecutiveFailures = 0
		m.counters.HeartbeatDrops.Add(1)
		m.logger.Warn("dropping connection",
			"failures", failures,
			"error", &Error{Kind: KindConsecutiveHeartbeatFailure, Op: "heartbeat"},
		)
		m.detachLocked(ReasonHeartbeatFailures, Reconnecting, &fx)
		fx.reconnect = ReasonHeartbeatFailures
	} else {
		if m.state == Connected {
			m.transitionLocked(Degraded, "heartbeat timeout", &fx)
		}
		env, rush = m.prepareHeartbeatLocked(gen)
	}
	m.publishLocked(&fx)
	m.mu.Unlock()

	m.apply(fx)
	if rush {
		m.sendHeartbeat(env)
	}
}

// OnReply resolves the outstanding heartbeat.
func (m *manager) OnReply(requestID int64) bool {
	m.mu.Lock()
	if m.heartbeat == nil || m.heartbeat.RequestID != requestID {
		m.mu.Unlock()
		m.logger.Debug("ignoring unmatched reply", "request_id", requestID)
		return false
	}

	rtt := time.Since(m.heartbeat.SentAt)
	m.heartbeat = nil
	if m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
	m.health.LastRoundTrip = &rtt
	m.health.ConsecutiveFailures = 0
	m.counters.HeartbeatReplies.Add(1)

	var fx effects
	if m.state == Degraded {
		m.transitionLocked(Connected, "heartbeat recovered", &fx)
	}
	m.publishLocked(&fx)
	m.mu.Unlock()

	m.logger.Debug("heartbeat reply", "request_id", requestID, "rtt", rtt)
	m.apply(fx)
	return true
}

// NotifyBatchReceived records a full sync batch. The first batch on a
// connection enables heartbeats and triggers one immediately.
func (m *manager) NotifyBatchReceived() {
	m.mu.Lock()
	m.health.LastSuccessfulSyncAt = time.Now()
	first := m.state.HasHandle() && !m.batchSeen
	if m.state.HasHandle() {
		m.batchSeen = true
	}
	wake := m.wake

	var fx effects
	m.publishLocked(&fx)
	m.mu.Unlock()

	if first {
		signal(wake)
	}
	m.apply(fx)
}

// HandleInbound peeks at a frame's command and request id. A reply to the
// outstanding heartbeat is consumed; every other frame is dispatched to
// consumers.
func (m *manager) HandleInbound(data []byte) {
	receivedAt := time.Now()

	fields := gjson.GetManyBytes(data, "command", "request_id")
	command := fields[0].String()
	requestID := fields[1].Int()

	switch {
	case requestID > 0 && isReply(command):
		if m.OnReply(requestID) {
			return
		}
	case requestID < 0:
		m.mu.Lock()
		m.lastReceivedID = requestID
		m.mu.Unlock()
	}

	if command == CommandSyncComplete {
		m.NotifyBatchReceived()
	}

	m.router.DispatchInbound(router.Payload{Data: data, ReceivedAt: receivedAt})
}

func isReply(command string) bool {
	switch command {
	case CommandResponse, CommandPong, CommandError:
		return true
	}
	return false
}
