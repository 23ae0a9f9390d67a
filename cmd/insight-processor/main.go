package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/consumer"
	"github.com/gosight/slidetrack/internal/insights"
	"github.com/gosight/slidetrack/internal/producer"
	"github.com/gosight/slidetrack/internal/storage"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := config.Path("config/processor.yaml")
	cfg, err := config.LoadProcessor(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Log.ZerologLevel())

	log.Info().
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Str("clickhouse_addr", cfg.ClickHouse.Addr).
		Str("redis_addr", cfg.Redis.Addr).
		Msg("Configuration loaded")

	// Initialize ClickHouse
	ch, err := storage.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	defer ch.Close()
	log.Info().Msg("Connected to ClickHouse")

	// Initialize Redis
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test connection
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, sessions may be analysed more than once")
			rdb = nil
		} else {
			defer rdb.Close()
			log.Info().Msg("Connected to Redis")
		}
	}

	// Alerts go to the alerts topic on the same brokers
	alertProducer, err := producer.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create alert producer")
	}
	defer alertProducer.Close()

	// Enable all detectors by default if not configured
	if !cfg.Insights.Skim.Enabled && !cfg.Insights.Revisit.Enabled &&
		!cfg.Insights.RapidSkip.Enabled && !cfg.Insights.IdleDropOff.Enabled {
		log.Info().Msg("No insight detectors enabled in config, enabling all by default")
		cfg.Insights.Skim.Enabled = true
		cfg.Insights.Revisit.Enabled = true
		cfg.Insights.RapidSkip.Enabled = true
		cfg.Insights.IdleDropOff.Enabled = true
	}

	insightProcessor := insights.NewProcessor(ch, rdb, alertProducer, cfg.Insights)

	kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.Kafka, "slidetrack-insight-processor", insightProcessor)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
	}

	// Start consuming
	ctx, cancel := context.WithCancel(context.Background())
	go kafkaConsumer.Start(ctx)

	log.Info().
		Bool("skimmed_slide", cfg.Insights.Skim.Enabled).
		Bool("slide_revisit", cfg.Insights.Revisit.Enabled).
		Bool("rapid_skipping", cfg.Insights.RapidSkip.Enabled).
		Bool("idle_drop_off", cfg.Insights.IdleDropOff.Enabled).
		Msg("Insight processor started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()
	kafkaConsumer.Close()
	insightProcessor.Stop()

	log.Info().Msg("Shutdown complete")
}
