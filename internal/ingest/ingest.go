// Package ingest is the transport-independent intake pipeline of the
// collector: validate, rate-limit, enrich and produce.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/metrics"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/validation"
)

type Producer interface {
	ProduceSnapshot(ctx context.Context, snap *model.EnrichedSnapshot) error
}

type Checker interface {
	ValidateSnapshot(snap *model.Snapshot) []string
	CheckRateLimit(ctx context.Context, sessionID string) bool
}

type Enricher interface {
	Enrich(snap model.Snapshot, transport, userAgent, clientIP string) *model.EnrichedSnapshot
}

// InvalidError lists the problems found in a rejected snapshot
type InvalidError struct {
	Problems []string
}

func (e *InvalidError) Error() string {
	return "invalid snapshot: " + strings.Join(e.Problems, "; ")
}

// ProduceError wraps a failure to hand an accepted snapshot to Kafka
type ProduceError struct {
	Err error
}

func (e *ProduceError) Error() string {
	return fmt.Sprintf("produce snapshot: %v", e.Err)
}

func (e *ProduceError) Unwrap() error {
	return e.Err
}

// Source describes where a snapshot came from
type Source struct {
	Transport string
	UserAgent string
	ClientIP  string
}

type Service struct {
	producer Producer
	checker  Checker
	enricher Enricher
}

func NewService(p Producer, c Checker, e Enricher) *Service {
	return &Service{
		producer: p,
		checker:  c,
		enricher: e,
	}
}

// Accept runs snap through the pipeline. Errors are *InvalidError,
// validation.ErrRateLimited or *ProduceError.
func (s *Service) Accept(ctx context.Context, snap model.Snapshot, src Source) (*model.EnrichedSnapshot, error) {
	metrics.RecordReceived(src.Transport)

	if problems := s.checker.ValidateSnapshot(&snap); len(problems) > 0 {
		metrics.RecordRejected(src.Transport, "invalid")
		return nil, &InvalidError{Problems: problems}
	}

	if !s.checker.CheckRateLimit(ctx, snap.SessionID) {
		metrics.RecordRejected(src.Transport, "rate_limited")
		return nil, validation.ErrRateLimited
	}

	enriched := s.enricher.Enrich(snap, src.Transport, src.UserAgent, src.ClientIP)

	start := time.Now()
	err := s.producer.ProduceSnapshot(ctx, enriched)
	metrics.ObserveProduce(time.Since(start), err)
	if err != nil {
		metrics.RecordRejected(src.Transport, "produce_failed")
		log.Error().Err(err).Str("session_id", snap.SessionID).Msg("Failed to produce snapshot")
		return nil, &ProduceError{Err: err}
	}

	log.Debug().
		Str("session_id", snap.SessionID).
		Str("transport", src.Transport).
		Bool("final", snap.Final()).
		Int("events", len(snap.EngagementEvents)).
		Msg("Snapshot accepted")

	return enriched, nil
}

// IsInvalid reports whether err is a validation rejection
func IsInvalid(err error) bool {
	var invalid *InvalidError
	return errors.As(err, &invalid)
}
