package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected         = errors.New("not connected")
	ErrAlreadyConnecting    = errors.New("attach already in progress")
	ErrAlreadyClosed        = errors.New("already closed")
	ErrNilHandle            = errors.New("nil connection handle")
	ErrNotStarted           = errors.New("manager not started")
	ErrStopped              = errors.New("manager stopped")
	ErrDetachedDuringAttach = errors.New("detached while attach was in progress")
)

// ErrorKind classifies engine failures for logging and metrics.
type ErrorKind int

const (
	KindTransportUnavailable ErrorKind = iota + 1
	KindHeartbeatTimeout
	KindConsecutiveHeartbeatFailure
	KindBackendUnreachable
	KindDuplicateRegistration
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransportUnavailable:
		return "transport_unavailable"
	case KindHeartbeatTimeout:
		return "heartbeat_timeout"
	case KindConsecutiveHeartbeatFailure:
		return "consecutive_heartbeat_failure"
	case KindBackendUnreachable:
		return "backend_unreachable"
	case KindDuplicateRegistration:
		return "duplicate_registration"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is an engine failure tagged with its kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TransitionError is returned when a state change is not a legal edge.
type TransitionError struct {
	From ConnectionState
	To   ConnectionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// Handle is an established transport connection. The manager owns it while
// attached and closes it on every transition out of Connected or Degraded.
type Handle interface {
	Send(data []byte) error
	Close() error
}

// Checker answers whether the backend is reachable independently of the
// persistent connection.
type Checker interface {
	CheckHealthy(ctx context.Context) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) bool

// CheckHealthy calls f(ctx).
func (f CheckerFunc) CheckHealthy(ctx context.Context) bool {
	return f(ctx)
}

// HeartbeatRecord is the single outstanding heartbeat.
type HeartbeatRecord struct {
	RequestID int64
	SentAt    time.Time
}

// HealthMetrics is mutated only by the heartbeat logic.
type HealthMetrics struct {
	LastRoundTrip        *time.Duration // nil until a reply on the current connection
	ConsecutiveFailures  int
	LastSuccessfulSyncAt time.Time // zero until the first sync batch
}

// ReconnectionAttempt is the single in-flight reconnection sequence.
type ReconnectionAttempt struct {
	ID          uuid.UUID
	Reason      string
	ScheduledAt time.Time
	InFlight    bool
}

// StateEvent describes one state transition.
type StateEvent struct {
	From   ConnectionState
	To     ConnectionState
	Reason string
	At     time.Time
}

// Envelope is the heartbeat command written to the transport.
type Envelope struct {
	Command   string        `json:"command"`
	RequestID int64         `json:"request_id"`
	Data      HeartbeatData `json:"data"`
}

// HeartbeatData is the heartbeat payload.
type HeartbeatData struct {
	LastReceivedID int64 `json:"last_received_id"`
}

// Frame commands recognised by HandleInbound.
const (
	CommandPing         = "ping"
	CommandPong         = "pong"
	CommandResponse     = "response"
	CommandError        = "error"
	CommandSyncComplete = "sync_complete"
)

// Detach reasons produced by the engine itself.
const (
	ReasonHeartbeatFailures = "consecutive heartbeat failures"
	ReasonNetworkLost       = "network lost"
	ReasonNetworkChanged    = "network changed"
)

// Config configures the Manager.
type Config struct {
	ForegroundInterval time.Duration // Heartbeat interval while foregrounded
	BackgroundInterval time.Duration // Heartbeat interval while backgrounded
	PongTimeout        time.Duration // Reply deadline for one heartbeat
	DropThreshold      int           // Consecutive timeouts that drop the connection

	MinSpacing       time.Duration // Floor between the end of one attempt and the start of the next
	SettleDelay      time.Duration // Pause after a healthy check before requesting a connection
	UnhealthyRecheck time.Duration // Pause between failed health checks
	HealthTimeout    time.Duration // Bound on a single health check
	AttachTimeout    time.Duration // How long a fired attempt waits for Attach

	AuditInterval     time.Duration // Self-consistency check period (0 disables)
	StatusMinInterval time.Duration // Minimum spacing of status emissions
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ForegroundInterval: 15 * time.Second,
		BackgroundInterval: 60 * time.Second,
		PongTimeout:        1 * time.Second,
		DropThreshold:      3,
		MinSpacing:         5 * time.Second,
		SettleDelay:        1 * time.Second,
		UnhealthyRecheck:   15 * time.Second,
		HealthTimeout:      5 * time.Second,
		AttachTimeout:      30 * time.Second,
		AuditInterval:      30 * time.Second,
		StatusMinInterval:  500 * time.Millisecond,
	}
}
