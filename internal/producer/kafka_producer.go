package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

const (
	TopicSnapshots = "snapshots"
	TopicAlerts    = "alerts"

	defaultSnapshotsTopic = "slidetrack.snapshots"
	defaultAlertsTopic    = "slidetrack.alerts"
)

type KafkaProducer struct {
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates one writer per logical topic. Writes are
// synchronous so the caller learns whether the broker accepted the message.
func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	topics := map[string]string{
		TopicSnapshots: cfg.Topic(TopicSnapshots, defaultSnapshotsTopic),
		TopicAlerts:    cfg.Topic(TopicAlerts, defaultAlertsTopic),
	}

	writers := make(map[string]*kafka.Writer, len(topics))
	for name, topic := range topics {
		writers[name] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		}
	}

	return &KafkaProducer{writers: writers}, nil
}

// ProduceSnapshot publishes an enriched snapshot keyed by session id, so all
// snapshots of a session land on one partition in arrival order
func (p *KafkaProducer) ProduceSnapshot(ctx context.Context, snap *model.EnrichedSnapshot) error {
	msg, err := snapshotMessage(snap)
	if err != nil {
		return err
	}
	return p.writers[TopicSnapshots].WriteMessages(ctx, msg)
}

// ProduceAlert publishes a JSON alert keyed by key
func (p *KafkaProducer) ProduceAlert(ctx context.Context, key string, alert interface{}) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	return p.writers[TopicAlerts].WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

func snapshotMessage(snap *model.EnrichedSnapshot) (kafka.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(snap.SessionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "transport", Value: []byte(snap.Transport)},
		},
	}, nil
}

func (p *KafkaProducer) Close() error {
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
