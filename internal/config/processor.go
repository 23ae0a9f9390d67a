package config

import (
	"time"
)

type ProcessorConfig struct {
	Log        LogConfig        `yaml:"log"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Batch      BatchConfig      `yaml:"batch"`
	Insights   InsightsConfig   `yaml:"insights"`
}

type InsightsConfig struct {
	Skim        SkimConfig        `yaml:"skimmed_slide"`
	Revisit     RevisitConfig     `yaml:"slide_revisit"`
	RapidSkip   RapidSkipConfig   `yaml:"rapid_skipping"`
	IdleDropOff IdleDropOffConfig `yaml:"idle_drop_off"`
}

type SkimConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MinDwellSeconds float64 `yaml:"min_dwell_seconds"`
}

type RevisitConfig struct {
	Enabled       bool  `yaml:"enabled"`
	MaxTimeAwayMs int64 `yaml:"max_time_away_ms"`
}

type RapidSkipConfig struct {
	Enabled      bool  `yaml:"enabled"`
	MinChanges   int   `yaml:"min_changes"`
	TimeWindowMs int64 `yaml:"time_window_ms"`
}

type IdleDropOffConfig struct {
	Enabled  bool  `yaml:"enabled"`
	WindowMs int64 `yaml:"window_ms"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type BatchConfig struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func LoadProcessor(path string) (*ProcessorConfig, error) {
	var cfg ProcessorConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// SetDefaults fills unset fields
func (cfg *ProcessorConfig) SetDefaults() {
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 1000
	}
	if cfg.Batch.FlushInterval == 0 {
		cfg.Batch.FlushInterval = 5 * time.Second
	}
	if cfg.ClickHouse.MaxOpenConns == 0 {
		cfg.ClickHouse.MaxOpenConns = 10
	}
	if cfg.ClickHouse.MaxIdleConns == 0 {
		cfg.ClickHouse.MaxIdleConns = 5
	}

	// Set insights defaults
	if cfg.Insights.Skim.MinDwellSeconds == 0 {
		cfg.Insights.Skim.MinDwellSeconds = 2
	}
	if cfg.Insights.Revisit.MaxTimeAwayMs == 0 {
		cfg.Insights.Revisit.MaxTimeAwayMs = 10000
	}
	if cfg.Insights.RapidSkip.MinChanges == 0 {
		cfg.Insights.RapidSkip.MinChanges = 5
	}
	if cfg.Insights.RapidSkip.TimeWindowMs == 0 {
		cfg.Insights.RapidSkip.TimeWindowMs = 5000
	}
	if cfg.Insights.IdleDropOff.WindowMs == 0 {
		cfg.Insights.IdleDropOff.WindowMs = 60000
	}
}
