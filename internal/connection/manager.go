package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/syncwatch/internal/metrics"
	"github.com/rickgao/syncwatch/internal/router"
	"github.com/rickgao/syncwatch/internal/status"
)

// Manager keeps one sync connection healthy and drives its reconnection.
type Manager interface {
	// Start begins the auditor and installs the manager as the router's transport.
	Start(ctx context.Context) error

	// Stop detaches any connection, cancels timers and waits for goroutines.
	Stop(ctx context.Context) error

	// Attach installs an established handle. A current handle is closed first.
	Attach(h Handle) error

	// Detach closes the current handle and moves to Disconnected.
	Detach(reason string)

	// State returns the current connection state.
	State() ConnectionState

	// HandleInbound processes one frame read from the transport.
	HandleInbound(data []byte)

	// OnReply resolves the outstanding heartbeat. Returns false on mismatch.
	OnReply(requestID int64) bool

	// NotifyBatchReceived records that a full sync batch arrived.
	NotifyBatchReceived()

	// NotifyForeground switches between foreground and background cadence.
	NotifyForeground(visible bool)

	// NotifyNetworkChanged records the active network and its availability.
	NotifyNetworkChanged(label string, available bool)

	// RequestReconnection starts a reconnection sequence unless one is in flight.
	RequestReconnection(reason string) bool

	// CancelReconnection abandons the in-flight sequence.
	CancelReconnection()

	// RegisterConsumer adds a payload consumer. Duplicate ids are rejected.
	RegisterConsumer(id string, send router.SendFunc, receive router.ReceiveFunc) bool

	// UnregisterConsumer removes a consumer synchronously.
	UnregisterConsumer(id string) bool

	// SendOutbound writes a command over the attached connection.
	SendOutbound(cmd []byte) bool

	// SendVia writes a command through a consumer's send path.
	SendVia(id string, cmd []byte) bool

	// CurrentSummary derives a fresh health summary.
	CurrentSummary() status.Summary

	// Stats returns current statistics.
	Stats() ManagerStats
}

// Deps are the collaborators a Manager calls out to. All are optional.
// OnReconnectionNeeded must not call Stop or CancelReconnection
// synchronously; both wait for a running hook to return.
type Deps struct {
	Checker              Checker
	Router               router.Router
	Notifier             status.Notifier
	Counters             *metrics.Counters
	OnReconnectionNeeded func(reason string)
	OnStateChange        func(StateEvent)
}

// ManagerStats provides statistics about the manager.
type ManagerStats struct {
	State               ConnectionState      `json:"state"`
	Generation          uint64               `json:"generation"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	LastRoundTrip       *time.Duration       `json:"last_round_trip_ns,omitempty"`
	AttemptInFlight     bool                 `json:"attempt_in_flight"`
	AttemptID           string               `json:"attempt_id,omitempty"`
	Router              router.RouterStats   `json:"router"`
	Status              status.ReporterStats `json:"status"`
	LastStatus          *status.Summary      `json:"last_status,omitempty"` // Last summary handed to the notifier
	Counters            metrics.Snapshot     `json:"counters"`
}

// manager implements the Manager interface.
type manager struct {
	cfg      Config
	logger   *slog.Logger
	checker  Checker
	router   router.Router
	reporter *status.Reporter
	counters *metrics.Counters

	onReconnect   func(string)
	onStateChange func(StateEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// hookMu is held while OnReconnectionNeeded runs.
	hookMu sync.Mutex

	// mu guards everything below. Hooks and handle I/O run outside it.
	mu      sync.Mutex
	started bool
	stopped bool
	state   ConnectionState
	handle  Handle

	// generation increments on every attach; timer callbacks carry it.
	generation uint64

	// Set when Detach arrives while an attach is between its two phases.
	detachPending bool
	detachReason  string

	// Heartbeat
	foreground     bool
	batchSeen      bool
	wake           chan struct{}
	probeCancel    context.CancelFunc
	heartbeat      *HeartbeatRecord
	pongTimer      *time.Timer
	nextRequestID  int64
	lastReceivedID int64
	health         HealthMetrics

	networkLabel     string
	networkAvailable bool

	// Reconnection
	attempt        *ReconnectionAttempt
	attemptCancel  context.CancelFunc
	lastAttemptEnd time.Time
}

// effects collects work decided under the mutex and performed after it is released.
type effects struct {
	closeHandles []Handle
	events       []StateEvent
	summary      *status.Summary
	reconnect    string
}

// NewManager creates a new connection manager.
func NewManager(cfg Config, deps Deps, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	r := deps.Router
	if r == nil {
		r = router.NewRouter(logger.With("component", "router"))
	}
	counters := deps.Counters
	if counters == nil {
		counters = &metrics.Counters{}
	}
	checker := deps.Checker
	if checker == nil {
		checker = CheckerFunc(func(context.Context) bool { return true })
	}

	return &manager{
		cfg:              cfg,
		logger:           logger,
		checker:          checker,
		router:           r,
		reporter:         status.NewReporter(cfg.StatusMinInterval, deps.Notifier, logger.With("component", "status")),
		counters:         counters,
		onReconnect:      deps.OnReconnectionNeeded,
		onStateChange:    deps.OnStateChange,
		state:            Disconnected,
		foreground:       true,
		networkAvailable: true,
	}
}

// Start begins the manager.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	summary := status.Derive(m.snapshotLocked(), time.Now())
	m.mu.Unlock()

	m.router.SetTransport(m)

	if m.cfg.AuditInterval > 0 {
		m.wg.Add(1)
		go m.auditLoop()
	}

	m.reporter.Publish(summary)

	m.logger.Info("connection manager started",
		"foreground_interval", m.cfg.ForegroundInterval,
		"pong_timeout", m.cfg.PongTimeout,
		"drop_threshold", m.cfg.DropThreshold,
	)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	m.mu.Lock()
	if m.stopped || !m.started {
		m.stopped = true
		m.mu.Unlock()
		return nil
	}
	m.stopped = true

	var fx effects
	m.clearAttemptLocked("stopped")
	switch {
	case m.state == Connecting:
		m.detachPending = true
		m.detachReason = "stopped"
	case m.state != Disconnected:
		m.detachLocked("stopped", Disconnected, &fx)
	}
	m.mu.Unlock()

	m.cancel()
	m.waitForHook()
	m.apply(fx)

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.router.SetTransport(nil)
	m.reporter.Stop()

	m.logger.Info("connection manager stopped")
	return nil
}

// Attach installs h as the current connection.
//
// Attach runs in two phases. The first moves to Connecting and releases any
// current handle, the second installs h once the old handle is closed. A
// Detach that arrives between the phases is applied after the second.
func (m *manager) Attach(h Handle) error {
	if h == nil {
		return ErrNilHandle
	}

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.state == Connecting {
		m.mu.Unlock()
		m.logger.Warn("attach rejected", "error", ErrAlreadyConnecting)
		return ErrAlreadyConnecting
	}

	var fx effects
	if m.state.HasHandle() {
		m.detachLocked("replacing connection", Reconnecting, &fx)
	}
	if err := m.transitionLocked(Connecting, "attach", &fx); err != nil {
		m.mu.Unlock()
		m.apply(fx)
		return err
	}
	m.mu.Unlock()

	// The old handle is closed before the new one goes live.
	m.apply(fx)

	m.mu.Lock()
	fx = effects{}
	m.handle = h
	m.generation++
	gen := m.generation
	m.batchSeen = false
	m.heartbeat = nil
	m.health.LastRoundTrip = nil
	m.clearAttemptLocked("attached")
	m.transitionLocked(Connected, "attached", &fx)
	m.startProbeLocked(gen)

	var err error
	if m.detachPending {
		reason := m.detachReason
		m.detachPending = false
		m.detachReason = ""
		m.detachLocked(reason, Disconnected, &fx)
		err = ErrDetachedDuringAttach
	}
	m.publishLocked(&fx)
	m.mu.Unlock()

	m.apply(fx)

	if err == nil {
		m.logger.Info("connection attached", "generation", gen)
	}
	return err
}

// Detach closes the current handle and moves to Disconnected. It also
// cancels any in-flight reconnection sequence.
func (m *manager) Detach(reason string) {
	m.mu.Lock()
	if m.state == Connecting {
		m.detachPending = true
		m.detachReason = reason
		m.mu.Unlock()
		m.logger.Info("detach deferred until attach completes", "reason", reason)
		return
	}

	var fx effects
	m.clearAttemptLocked("detached")
	if m.state != Disconnected {
		m.detachLocked(reason, Disconnected, &fx)
	}
	m.publishLocked(&fx)
	m.mu.Unlock()

	m.apply(fx)
}

// State returns the current state.
func (m *manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// NotifyForeground switches heartbeat cadence and wakes the probe.
func (m *manager) NotifyForeground(visible bool) {
	m.mu.Lock()
	changed := m.foreground != visible
	m.foreground = visible
	wake := m.wake
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Debug("foreground changed", "visible", visible)
	signal(wake)
}

// NotifyNetworkChanged records the network label. Losing the network drops
// an attached connection; a network appearing while unattached requests a
// reconnection.
func (m *manager) NotifyNetworkChanged(label string, available bool) {
	m.mu.Lock()
	m.networkLabel = label
	m.networkAvailable = available

	var fx effects
	switch {
	case !available && m.state.HasHandle():
		m.detachLocked(ReasonNetworkLost, Disconnected, &fx)
	case available && !m.state.HasHandle() && m.state != Connecting:
		fx.reconnect = ReasonNetworkChanged
	}
	m.publishLocked(&fx)
	m.mu.Unlock()

	m.logger.Info("network changed", "label", label, "available", available)
	m.apply(fx)
}

// RegisterConsumer adds a payload consumer. A taken id is rejected and
// the existing consumer is kept.
func (m *manager) RegisterConsumer(id string, send router.SendFunc, receive router.ReceiveFunc) bool {
	if m.router.RegisterConsumer(id, send, receive) {
		return true
	}
	if id != "" && receive != nil {
		m.counters.DuplicateRegistrations.Add(1)
		m.logger.Warn("consumer registration rejected",
			"id", id,
			"error", &Error{Kind: KindDuplicateRegistration, Op: "register", Err: router.ErrDuplicateConsumer},
		)
	}
	return false
}

// UnregisterConsumer removes a consumer.
func (m *manager) UnregisterConsumer(id string) bool {
	return m.router.UnregisterConsumer(id)
}

// SendOutbound writes a command over the attached connection.
func (m *manager) SendOutbound(cmd []byte) bool {
	return m.router.SendOutbound(cmd)
}

// SendVia writes a command through a consumer's send path.
func (m *manager) SendVia(id string, cmd []byte) bool {
	return m.router.SendVia(id, cmd)
}

// Send implements router.Transport by writing to the current handle.
func (m *manager) Send(data []byte) error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h == nil {
		return &Error{Kind: KindTransportUnavailable, Op: "send", Err: ErrNotConnected}
	}
	return h.Send(data)
}

// Connected implements router.Transport.
func (m *manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// CurrentSummary derives a fresh summary.
func (m *manager) CurrentSummary() status.Summary {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	return status.Derive(snap, time.Now())
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		State:               m.state,
		Generation:          m.generation,
		ConsecutiveFailures: m.health.ConsecutiveFailures,
		LastRoundTrip:       m.health.LastRoundTrip,
		AttemptInFlight:     m.attempt != nil,
	}
	if m.attempt != nil {
		stats.AttemptID = m.attempt.ID.String()
	}
	m.mu.Unlock()

	stats.Router = m.router.Stats()
	stats.Status = m.reporter.Stats()
	if last, ok := m.reporter.Last(); ok {
		stats.LastStatus = &last
	}
	stats.Counters = m.counters.Snapshot()
	return stats
}

// transitionLocked moves to a new state if the edge is legal.
func (m *manager) transitionLocked(to ConnectionState, reason string, fx *effects) error {
	from := m.state
	if !CanTransition(from, to) {
		err := &TransitionError{From: from, To: to}
		m.counters.IllegalTransitions.Add(1)
		m.logger.Error("rejected state transition",
			"old", from,
			"new", to,
			"reason", reason,
			"error", err,
		)
		return err
	}

	m.state = to
	m.counters.Transitions.Add(1)
	m.logger.Info("connection state changed",
		"old", from,
		"new", to,
		"reason", reason,
	)
	fx.events = append(fx.events, StateEvent{From: from, To: to, Reason: reason, At: time.Now()})
	return nil
}

// detachLocked releases the handle and heartbeat state and moves to target.
// ConsecutiveFailures and LastSuccessfulSyncAt are kept.
func (m *manager) detachLocked(reason string, target ConnectionState, fx *effects) {
	if m.handle != nil {
		fx.closeHandles = append(fx.closeHandles, m.handle)
		m.handle = nil
	}
	m.stopProbeLocked()
	m.batchSeen = false
	m.health.LastRoundTrip = nil

	if m.state != target {
		m.transitionLocked(target, reason, fx)
	}
}

// snapshotLocked captures the inputs of a status summary.
func (m *manager) snapshotLocked() status.Snapshot {
	return status.Snapshot{
		State:                m.state.String(),
		Connected:            m.state.HasHandle(),
		LastRoundTrip:        m.health.LastRoundTrip,
		LastSuccessfulSyncAt: m.health.LastSuccessfulSyncAt,
		ConsecutiveFailures:  m.health.ConsecutiveFailures,
		NetworkLabel:         m.networkLabel,
	}
}

func (m *manager) publishLocked(fx *effects) {
	s := status.Derive(m.snapshotLocked(), time.Now())
	fx.summary = &s
}

// apply performs the side effects collected under the mutex.
func (m *manager) apply(fx effects) {
	for _, h := range fx.closeHandles {
		if err := h.Close(); err != nil {
			m.logger.Debug("closing handle failed", "error", err)
		}
	}
	if m.onStateChange != nil {
		for _, ev := range fx.events {
			m.onStateChange(ev)
		}
	}
	if fx.summary != nil {
		m.reporter.Publish(*fx.summary)
	}
	if fx.reconnect != "" {
		m.RequestReconnection(fx.reconnect)
	}
}

// signal wakes a goroutine without blocking.
func signal(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// sleepCtx waits for d or until ctx is done. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
