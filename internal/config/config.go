package config

import "time"

// Config is the root configuration for a syncwatch instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Status    StatusConfig    `yaml:"status"`
	Database  DBConfig        `yaml:"database"`
	Writer    WriterConfig    `yaml:"writer"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds backend endpoints.
type APIConfig struct {
	RestURL       string        `yaml:"rest_url"`
	WSURL         string        `yaml:"ws_url"`
	Token         string        `yaml:"token"`       // Bearer token for REST and websocket
	HealthPath    string        `yaml:"health_path"` // Liveness endpoint, relative to rest_url
	HealthTimeout time.Duration `yaml:"health_timeout"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// HeartbeatConfig tunes the health probe.
type HeartbeatConfig struct {
	ForegroundInterval time.Duration `yaml:"foreground_interval"`
	BackgroundInterval time.Duration `yaml:"background_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	DropThreshold      int           `yaml:"drop_threshold"`
	AuditInterval      time.Duration `yaml:"audit_interval"`
}

// ReconnectConfig tunes the reconnection scheduler.
type ReconnectConfig struct {
	MinSpacing       time.Duration `yaml:"min_spacing"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	UnhealthyRecheck time.Duration `yaml:"unhealthy_recheck"`
	AttachTimeout    time.Duration `yaml:"attach_timeout"`
}

// StatusConfig tunes the status reporter.
type StatusConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

// DBConfig holds the optional status history database.
// An empty host disables history persistence.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database was configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// WriterConfig holds status history writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// ServerConfig holds the health HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
