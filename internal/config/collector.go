package config

type CollectorConfig struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	GRPCPort     int   `yaml:"grpc_port"`
	HTTPPort     int   `yaml:"http_port"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RateLimitConfig bounds snapshots accepted per session per second
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
}

func LoadCollector(path string) (*CollectorConfig, error) {
	var cfg CollectorConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}

	return &cfg, nil
}
