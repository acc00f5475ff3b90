package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHealthPath         = "/_matrix/client/versions"
	DefaultHealthTimeout      = 5 * time.Second
	DefaultDialTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultForegroundInterval = 15 * time.Second
	DefaultBackgroundInterval = 60 * time.Second
	DefaultPongTimeout        = 1 * time.Second
	DefaultDropThreshold      = 3
	DefaultAuditInterval      = 30 * time.Second
	DefaultMinSpacing         = 5 * time.Second
	DefaultSettleDelay        = 1 * time.Second
	DefaultUnhealthyRecheck   = 15 * time.Second
	DefaultAttachTimeout      = 30 * time.Second
	DefaultStatusMinInterval  = 500 * time.Millisecond
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultBatchSize          = 100
	DefaultFlushInterval      = 5 * time.Second
	DefaultBufferSize         = 1000
	DefaultServerPort         = 8080
	DefaultLogLevel           = "info"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.HealthPath == "" {
		c.API.HealthPath = DefaultHealthPath
	}
	if c.API.HealthTimeout == 0 {
		c.API.HealthTimeout = DefaultHealthTimeout
	}
	if c.API.DialTimeout == 0 {
		c.API.DialTimeout = DefaultDialTimeout
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = DefaultWriteTimeout
	}

	// Heartbeat defaults
	if c.Heartbeat.ForegroundInterval == 0 {
		c.Heartbeat.ForegroundInterval = DefaultForegroundInterval
	}
	if c.Heartbeat.BackgroundInterval == 0 {
		c.Heartbeat.BackgroundInterval = DefaultBackgroundInterval
	}
	if c.Heartbeat.PongTimeout == 0 {
		c.Heartbeat.PongTimeout = DefaultPongTimeout
	}
	if c.Heartbeat.DropThreshold == 0 {
		c.Heartbeat.DropThreshold = DefaultDropThreshold
	}
	if c.Heartbeat.AuditInterval == 0 {
		c.Heartbeat.AuditInterval = DefaultAuditInterval
	}

	// Reconnect defaults
	if c.Reconnect.MinSpacing == 0 {
		c.Reconnect.MinSpacing = DefaultMinSpacing
	}
	if c.Reconnect.SettleDelay == 0 {
		c.Reconnect.SettleDelay = DefaultSettleDelay
	}
	if c.Reconnect.UnhealthyRecheck == 0 {
		c.Reconnect.UnhealthyRecheck = DefaultUnhealthyRecheck
	}
	if c.Reconnect.AttachTimeout == 0 {
		c.Reconnect.AttachTimeout = DefaultAttachTimeout
	}

	if c.Status.MinInterval == 0 {
		c.Status.MinInterval = DefaultStatusMinInterval
	}

	// Database defaults only matter when a database is configured
	if c.Database.Enabled() {
		if c.Database.Port == 0 {
			c.Database.Port = DefaultDBPort
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = DefaultDBSSLMode
		}
		if c.Database.MaxConns == 0 {
			c.Database.MaxConns = DefaultMaxConns
		}
		if c.Database.MinConns == 0 {
			c.Database.MinConns = DefaultMinConns
		}
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
