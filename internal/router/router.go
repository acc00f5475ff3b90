package router

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Router fans inbound payloads out to registered consumers and routes
// outbound commands to the transport.
type Router interface {
	// RegisterConsumer adds a consumer. Returns false if id is empty, receive
	// is nil, or id is already registered. An existing entry is never replaced.
	RegisterConsumer(id string, send SendFunc, receive ReceiveFunc) bool

	// UnregisterConsumer removes a consumer. Once it returns, the consumer's
	// callbacks are never invoked again.
	UnregisterConsumer(id string) bool

	// DispatchInbound delivers a payload to every consumer in registration order.
	DispatchInbound(p Payload)

	// SendOutbound writes a command through the designated transport.
	// Returns false if no connection is attached or the write fails.
	SendOutbound(cmd []byte) bool

	// SendVia writes a command through a registered consumer's send path.
	SendVia(id string, cmd []byte) bool

	// SetTransport installs the designated outbound path.
	SetTransport(t Transport)

	// Stats returns current router statistics.
	Stats() RouterStats
}

type consumerEntry struct {
	id      string
	send    SendFunc
	receive ReceiveFunc

	// mu is held for each delivery. Unregister takes it to wait out an
	// in-flight receive before marking the entry removed.
	mu      sync.Mutex
	removed bool
}

// registry is an immutable view of the consumers. Mutations publish a new copy.
type registry struct {
	entries map[string]*consumerEntry
	order   []*consumerEntry
}

// router is the internal implementation.
type router struct {
	logger *slog.Logger

	// mu serializes Register and Unregister. Readers load reg without it.
	mu  sync.Mutex
	reg atomic.Pointer[registry]

	transportMu sync.RWMutex
	transport   Transport

	dispatched   atomic.Int64
	deliveries   atomic.Int64
	failures     atomic.Int64
	sent         atomic.Int64
	droppedSends atomic.Int64
}

// NewRouter creates a new consumer router.
func NewRouter(logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := &router{logger: logger}
	r.reg.Store(&registry{entries: make(map[string]*consumerEntry)})
	return r
}

// RegisterConsumer adds a consumer under a unique id.
func (r *router) RegisterConsumer(id string, send SendFunc, receive ReceiveFunc) bool {
	if id == "" || receive == nil {
		r.logger.Warn("rejected consumer registration", "id", id, "error", "empty id or nil receive")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.reg.Load()
	if _, exists := cur.entries[id]; exists {
		r.logger.Debug("rejected consumer registration",
			"id", id,
			"error", ErrDuplicateConsumer,
		)
		return false
	}

	entry := &consumerEntry{id: id, send: send, receive: receive}
	next := &registry{
		entries: make(map[string]*consumerEntry, len(cur.entries)+1),
		order:   make([]*consumerEntry, 0, len(cur.order)+1),
	}
	for k, v := range cur.entries {
		next.entries[k] = v
	}
	next.entries[id] = entry
	next.order = append(append(next.order, cur.order...), entry)
	r.reg.Store(next)

	r.logger.Debug("consumer registered", "id", id, "consumers", len(next.order))
	return true
}

// UnregisterConsumer removes a consumer and waits for any delivery to it
// that is already running. A receive callback must not unregister itself.
func (r *router) UnregisterConsumer(id string) bool {
	r.mu.Lock()
	cur := r.reg.Load()
	entry, ok := cur.entries[id]
	if !ok {
		r.mu.Unlock()
		return false
	}

	next := &registry{
		entries: make(map[string]*consumerEntry, len(cur.entries)),
		order:   make([]*consumerEntry, 0, len(cur.order)),
	}
	for k, v := range cur.entries {
		if k != id {
			next.entries[k] = v
		}
	}
	for _, e := range cur.order {
		if e != entry {
			next.order = append(next.order, e)
		}
	}
	r.reg.Store(next)
	r.mu.Unlock()

	// Dispatches that loaded the old registry skip the entry from here on.
	entry.mu.Lock()
	entry.removed = true
	entry.mu.Unlock()

	r.logger.Debug("consumer unregistered", "id", id, "consumers", len(next.order))
	return true
}

// DispatchInbound delivers a payload to all consumers.
func (r *router) DispatchInbound(p Payload) {
	reg := r.reg.Load()

	r.dispatched.Add(1)
	for _, entry := range reg.order {
		delivered, err := r.deliver(entry, p)
		if !delivered {
			continue
		}
		if err != nil {
			r.failures.Add(1)
			r.logger.Warn("consumer failed to handle payload",
				"id", entry.id,
				"error", err,
			)
			continue
		}
		r.deliveries.Add(1)
	}
}

// deliver invokes a single consumer, converting a panic into an error.
// It reports false if the consumer was unregistered first.
func (r *router) deliver(entry *consumerEntry, p Payload) (delivered bool, err error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return false, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			delivered = true
			err = fmt.Errorf("consumer panic: %v", rec)
		}
	}()
	return true, entry.receive(p)
}

// SendOutbound writes a command through the designated transport.
func (r *router) SendOutbound(cmd []byte) bool {
	r.transportMu.RLock()
	t := r.transport
	r.transportMu.RUnlock()

	if t == nil || !t.Connected() {
		r.dropSend("", ErrTransportUnavailable)
		return false
	}

	if err := t.Send(cmd); err != nil {
		r.dropSend("", err)
		return false
	}

	r.sent.Add(1)
	return true
}

// SendVia writes a command through a consumer's send path.
func (r *router) SendVia(id string, cmd []byte) bool {
	r.transportMu.RLock()
	t := r.transport
	r.transportMu.RUnlock()

	if t == nil || !t.Connected() {
		r.dropSend(id, ErrTransportUnavailable)
		return false
	}

	entry, ok := r.reg.Load().entries[id]

	if !ok || entry.send == nil {
		r.dropSend(id, ErrUnknownConsumer)
		return false
	}

	if err := entry.send(cmd); err != nil {
		r.dropSend(id, err)
		return false
	}

	r.sent.Add(1)
	return true
}

func (r *router) dropSend(via string, err error) {
	r.droppedSends.Add(1)
	r.logger.Debug("outbound command dropped",
		"via", via,
		"error", err,
	)
}

// SetTransport installs the designated outbound path.
func (r *router) SetTransport(t Transport) {
	r.transportMu.Lock()
	r.transport = t
	r.transportMu.Unlock()
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	return RouterStats{
		Consumers:        len(r.reg.Load().order),
		Dispatched:       r.dispatched.Load(),
		Deliveries:       r.deliveries.Load(),
		ConsumerFailures: r.failures.Load(),
		Sent:             r.sent.Load(),
		DroppedSends:     r.droppedSends.Load(),
	}
}
