package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/rickgao/syncwatch/internal/connection"
	"github.com/rickgao/syncwatch/internal/router"
)

var errDialInProgress = errors.New("dial already in progress")

// owner opens websockets for the manager and pumps their frames into it.
type owner struct {
	ctx    context.Context
	cfg    connection.ClientConfig
	mgr    connection.Manager
	logger *slog.Logger

	mu      sync.Mutex
	current connection.Client
	dialing bool
}

func newOwner(ctx context.Context, cfg connection.ClientConfig, logger *slog.Logger) *owner {
	return &owner{ctx: ctx, cfg: cfg, logger: logger}
}

// onReconnectionNeeded is the manager's reconnection hook. It must not
// block, so the dial runs in its own goroutine; a failed dial is left to
// the manager's attach timeout.
func (o *owner) onReconnectionNeeded(reason string) {
	go func() {
		if err := o.connect(o.ctx); err != nil {
			o.logger.Warn("reconnection dial failed", "reason", reason, "error", err)
		}
	}()
}

// connect dials a websocket and attaches it.
func (o *owner) connect(ctx context.Context) error {
	o.mu.Lock()
	if o.dialing {
		o.mu.Unlock()
		return errDialInProgress
	}
	o.dialing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.dialing = false
		o.mu.Unlock()
	}()

	c := connection.NewClient(o.cfg, o.logger.With("url", o.cfg.URL))
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	o.mu.Lock()
	o.current = c
	o.mu.Unlock()

	if err := o.mgr.Attach(c); err != nil {
		c.Close()
		return fmt.Errorf("attach: %w", err)
	}

	go o.pump(ctx, c)
	return nil
}

// pump forwards frames from c into the manager until c is closed, fails
// or is replaced.
func (o *owner) pump(ctx context.Context, c connection.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case msg := <-c.Messages():
			// Frames still buffered from a replaced socket must not count
			// as a sync on its successor.
			if !o.isCurrent(c) {
				return
			}
			o.mgr.HandleInbound(msg.Data)
		case err := <-c.Errors():
			if !o.isCurrent(c) {
				return
			}
			o.logger.Warn("transport error", "error", err)
			o.mgr.Detach("transport error")
			o.mgr.RequestReconnection("transport error")
			return
		}
	}
}

func (o *owner) isCurrent(c connection.Client) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == c
}

// registerLogConsumer adds a consumer that logs each frame's command.
func registerLogConsumer(mgr connection.Manager, logger *slog.Logger) {
	mgr.RegisterConsumer("log", nil, func(p router.Payload) error {
		if !gjson.ValidBytes(p.Data) {
			return errors.New("frame is not valid JSON")
		}
		logger.Debug("frame received",
			"command", gjson.GetBytes(p.Data, "command").String(),
			"bytes", len(p.Data),
		)
		return nil
	})
}
