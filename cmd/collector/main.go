package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/enricher"
	"github.com/gosight/slidetrack/internal/handler"
	"github.com/gosight/slidetrack/internal/ingest"
	"github.com/gosight/slidetrack/internal/producer"
	"github.com/gosight/slidetrack/internal/rpc"
	"github.com/gosight/slidetrack/internal/server"
	"github.com/gosight/slidetrack/internal/validation"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadCollector(config.Path("config/collector.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Log.ZerologLevel())

	log.Info().Msg("Starting slidetrack collector...")

	// Initialize dependencies
	kafkaProducer, err := producer.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka producer")
	}
	defer kafkaProducer.Close()
	log.Info().Msg("Kafka producer initialized")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	validator := validation.NewValidator(rdb, cfg.RateLimit.RequestsPerSecond)
	defer validator.Close()
	log.Info().Msg("Validator initialized")

	snapshotEnricher := enricher.NewEnricher(cfg.GeoIP.DatabasePath)
	defer snapshotEnricher.Close()
	log.Info().Msg("Enricher initialized")

	intake := ingest.NewService(kafkaProducer, validator, snapshotEnricher)

	// Create gRPC server
	grpcServer := grpc.NewServer()
	rpc.RegisterCollectorServiceServer(grpcServer, server.NewCollectorServer(intake))

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to listen for gRPC")
		}
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to serve gRPC")
		}
	}()

	// Create HTTP server
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: handler.NewRouter(handler.NewHTTPHandler(intake, cfg.Server.MaxBodyBytes)),
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down servers...")
	grpcServer.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
	log.Info().Msg("Servers stopped")
}
