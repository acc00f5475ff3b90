package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.WSURL == "" {
		return errors.New("api.ws_url is required")
	}
	if u, err := url.Parse(c.API.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("api.ws_url must be a ws:// or wss:// URL, got %q", c.API.WSURL)
	}
	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}

	if c.Heartbeat.DropThreshold < 1 {
		return errors.New("heartbeat.drop_threshold must be >= 1")
	}
	if c.Heartbeat.PongTimeout <= 0 {
		return errors.New("heartbeat.pong_timeout must be > 0")
	}
	if c.Heartbeat.PongTimeout >= c.Heartbeat.ForegroundInterval {
		return fmt.Errorf("heartbeat.pong_timeout (%v) must be shorter than heartbeat.foreground_interval (%v)",
			c.Heartbeat.PongTimeout, c.Heartbeat.ForegroundInterval)
	}
	if c.Heartbeat.BackgroundInterval < c.Heartbeat.ForegroundInterval {
		return errors.New("heartbeat.background_interval must be >= heartbeat.foreground_interval")
	}

	if c.Reconnect.MinSpacing < 0 {
		return errors.New("reconnect.min_spacing must be >= 0")
	}
	if c.Reconnect.UnhealthyRecheck <= 0 {
		return errors.New("reconnect.unhealthy_recheck must be > 0")
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}
	if c.Writer.BufferSize < 1 {
		return errors.New("writer.buffer_size must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
