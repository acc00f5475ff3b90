package router

import (
	"errors"
	"time"
)

// Errors
var (
	ErrDuplicateConsumer    = errors.New("consumer already registered")
	ErrTransportUnavailable = errors.New("no connection attached")
	ErrUnknownConsumer      = errors.New("unknown consumer")
)

// Payload is an inbound frame delivered to every consumer.
type Payload struct {
	Data       []byte    // Raw frame bytes from the transport
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// ReceiveFunc handles an inbound payload. A returned error is logged and
// does not affect delivery to other consumers.
type ReceiveFunc func(Payload) error

// SendFunc writes an encoded command through a consumer-owned path.
type SendFunc func(cmd []byte) error

// Transport is the designated outbound path. It is implemented by the
// connection manager, which resolves the currently attached handle on
// every call rather than handing it out.
type Transport interface {
	Send(cmd []byte) error
	Connected() bool
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	Consumers        int
	Dispatched       int64 // Payloads dispatched
	Deliveries       int64 // Successful receive calls
	ConsumerFailures int64 // Receive calls that errored or panicked
	Sent             int64
	DroppedSends     int64
}
