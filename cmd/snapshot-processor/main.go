package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/consumer"
	"github.com/gosight/slidetrack/internal/processor"
	"github.com/gosight/slidetrack/internal/session"
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
		Int("batch_size", cfg.Batch.Size).
		Dur("flush_interval", cfg.Batch.FlushInterval).
		Msg("Configuration loaded")

	// Initialize ClickHouse
	ch, err := storage.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	defer ch.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ch.Migrate(migrateCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create ClickHouse tables")
	}
	cancelMigrate()
	log.Info().Msg("Connected to ClickHouse")

	// Initialize delivery aggregator
	var deliveries *session.Aggregator
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deliveries = session.NewAggregator(ch, rdb)
		defer deliveries.Close()
		log.Info().Msg("Delivery aggregator initialized")
	}

	var recorder processor.DeliveryRecorder
	if deliveries != nil {
		recorder = deliveries
	}
	snapshotProcessor := processor.NewSnapshotProcessor(ch, recorder, cfg.Batch)

	kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.Kafka, "slidetrack-snapshot-processor", snapshotProcessor)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
	}

	// Start consuming
	ctx, cancel := context.WithCancel(context.Background())
	go kafkaConsumer.Start(ctx)

	log.Info().Msg("Snapshot processor started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()
	kafkaConsumer.Close()
	snapshotProcessor.Stop()

	// Flush delivery summaries still held in Redis
	if deliveries != nil {
		if err := deliveries.FlushAllSessions(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to flush delivery summaries")
		}
	}

	log.Info().Msg("Shutdown complete")
}
