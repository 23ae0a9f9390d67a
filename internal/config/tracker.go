package config

import (
	"time"
)

const (
	DefaultIdleTimeout      = 30 * time.Second
	DefaultSendTimeout      = 5 * time.Second
	DefaultFinalSendTimeout = 2 * time.Second
)

type TrackerConfig struct {
	Log         LogConfig         `yaml:"log"`
	CustomerID  string            `yaml:"customer_id"`
	TabID       string            `yaml:"tab_id"`
	IdleTimeout time.Duration     `yaml:"idle_timeout"`
	Collector   SyncConfig        `yaml:"collector"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Device      DeviceConfig      `yaml:"device"`
}

// SyncConfig configures delivery of snapshots to the collector
type SyncConfig struct {
	Transport        string        `yaml:"transport"` // http|grpc
	Endpoint         string        `yaml:"endpoint"`
	GRPCAddr         string        `yaml:"grpc_addr"`
	Timeout          time.Duration `yaml:"timeout"`
	FinalSendTimeout time.Duration `yaml:"final_send_timeout"`
}

type PersistenceConfig struct {
	Backend     string        `yaml:"backend"` // memory|redis|sqlite|postgres
	TabTTL      time.Duration `yaml:"tab_ttl"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	Redis       RedisConfig   `yaml:"redis"`
	KeyPrefix   string        `yaml:"key_prefix"`
}

type DeviceConfig struct {
	UserAgent    string `yaml:"user_agent"`
	ScreenWidth  int    `yaml:"screen_width"`
	ScreenHeight int    `yaml:"screen_height"`
	IsMobile     bool   `yaml:"is_mobile"`
}

func LoadTracker(path string) (*TrackerConfig, error) {
	var cfg TrackerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// SetDefaults fills unset fields
func (c *TrackerConfig) SetDefaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.TabID == "" {
		c.TabID = "default"
	}
	if c.Collector.Transport == "" {
		c.Collector.Transport = "http"
	}
	if c.Collector.Timeout == 0 {
		c.Collector.Timeout = DefaultSendTimeout
	}
	if c.Collector.FinalSendTimeout == 0 {
		c.Collector.FinalSendTimeout = DefaultFinalSendTimeout
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "memory"
	}
	if c.Persistence.TabTTL == 0 {
		c.Persistence.TabTTL = 12 * time.Hour
	}
	if c.Persistence.KeyPrefix == "" {
		c.Persistence.KeyPrefix = "slidetrack:"
	}
}
