package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

// MessageProcessor handles decoded snapshots
type MessageProcessor interface {
	Process(ctx context.Context, snap *model.EnrichedSnapshot) error
	Flush()
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// KafkaConsumer consumes enriched snapshots from Kafka
type KafkaConsumer struct {
	reader    reader
	processor MessageProcessor
}

// NewKafkaConsumer creates a consumer on the snapshots topic. group
// overrides the configured consumer group when set.
func NewKafkaConsumer(cfg config.KafkaConfig, group string, processor MessageProcessor) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if group == "" {
		group = cfg.ConsumerGroup
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic("snapshots", "slidetrack.snapshots"),
		GroupID:        group,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 1000,
		StartOffset:    kafka.LastOffset,
	})

	return &KafkaConsumer{
		reader:    r,
		processor: processor,
	}, nil
}

// Decode parses a message value into an enriched snapshot
func Decode(value []byte) (*model.EnrichedSnapshot, error) {
	var snap model.EnrichedSnapshot
	if err := json.Unmarshal(value, &snap); err != nil {
		return nil, err
	}
	if snap.SessionID == "" {
		return nil, fmt.Errorf("snapshot without session id")
	}
	return &snap, nil
}

// Start consumes until ctx is cancelled
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group", c.reader.Config().GroupID).
		Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Kafka consumer stopped")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to fetch message")
				continue
			}

			snap, err := Decode(msg.Value)
			if err != nil {
				log.Error().
					Err(err).
					Str("value", string(msg.Value)).
					Msg("Failed to parse message")
				// Still commit to avoid getting stuck
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					log.Error().Err(err).Msg("Failed to commit message")
				}
				continue
			}

			if err := c.processor.Process(ctx, snap); err != nil {
				log.Error().
					Err(err).
					Str("session_id", snap.SessionID).
					Msg("Failed to process snapshot")
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
		}
	}
}

// Close flushes the processor and closes the reader
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	c.processor.Flush()
	return c.reader.Close()
}
