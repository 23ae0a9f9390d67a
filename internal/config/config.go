package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level string `yaml:"level"`
}

type KafkaConfig struct {
	Brokers       []string          `yaml:"brokers"`
	Topics        map[string]string `yaml:"topics"`
	ConsumerGroup string            `yaml:"consumer_group"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Topic returns the configured topic for name, or fallback
func (k KafkaConfig) Topic(name, fallback string) string {
	if t := k.Topics[name]; t != "" {
		return t
	}
	return fallback
}

// ZerologLevel parses Level, defaulting to info
func (l LogConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.TrimSpace(l.Level))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Path returns CONFIG_PATH, or fallback when it is unset
func Path(fallback string) string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return fallback
}

func load(path string, out interface{}) error {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	return yaml.Unmarshal([]byte(expanded), out)
}
