package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/metrics"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/storage"
	"github.com/gosight/slidetrack/internal/transformer"
)

// Store is the ClickHouse surface the processor writes to
type Store interface {
	InsertSessions(ctx context.Context, rows []storage.SessionRow) error
	InsertSlideDwell(ctx context.Context, rows []storage.SlideDwellRow) error
	InsertEngagementEvents(ctx context.Context, rows []storage.EngagementEventRow) error
}

// DeliveryRecorder observes every delivery, including superseded ones
type DeliveryRecorder interface {
	Record(ctx context.Context, snap *model.EnrichedSnapshot) (bool, error)
}

// SnapshotProcessor buffers the latest snapshot per session and writes it
// to ClickHouse in batches
type SnapshotProcessor struct {
	store      Store
	deliveries DeliveryRecorder
	batchCfg   config.BatchConfig

	// Latest-received snapshot per session; later deliveries replace earlier ones
	pending map[string]*model.EnrichedSnapshot

	mu        sync.Mutex
	lastFlush time.Time
	ticker    *time.Ticker
	done      chan struct{}
	stopOnce  sync.Once
}

func NewSnapshotProcessor(store Store, deliveries DeliveryRecorder, batchCfg config.BatchConfig) *SnapshotProcessor {
	p := &SnapshotProcessor{
		store:      store,
		deliveries: deliveries,
		batchCfg:   batchCfg,
		pending:    make(map[string]*model.EnrichedSnapshot, batchCfg.Size),
		lastFlush:  time.Now(),
		done:       make(chan struct{}),
	}

	// Start flush ticker
	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	go p.flushLoop()

	return p
}

// Process buffers one snapshot
func (p *SnapshotProcessor) Process(ctx context.Context, snap *model.EnrichedSnapshot) error {
	metrics.RecordProcessed("snapshot")

	if p.deliveries != nil {
		if _, err := p.deliveries.Record(ctx, snap); err != nil {
			log.Warn().Err(err).Str("session_id", snap.SessionID).Msg("Delivery tracking failed")
		}
	}

	p.mu.Lock()
	p.pending[snap.SessionID] = snap
	shouldFlush := len(p.pending) >= p.batchCfg.Size
	p.mu.Unlock()

	// Flush if buffer full
	if shouldFlush {
		p.Flush()
	}

	return nil
}

func (p *SnapshotProcessor) flushLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.Flush()
		}
	}
}

// Flush writes all buffered snapshots to ClickHouse
func (p *SnapshotProcessor) Flush() {
	p.mu.Lock()

	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}

	snapshots := p.pending
	p.pending = make(map[string]*model.EnrichedSnapshot, p.batchCfg.Size)
	p.lastFlush = time.Now()
	p.mu.Unlock()

	var (
		sessions []storage.SessionRow
		slides   []storage.SlideDwellRow
		events   []storage.EngagementEventRow
	)
	for _, snap := range snapshots {
		result := transformer.TransformSnapshot(snap)
		sessions = append(sessions, result.Session)
		slides = append(slides, result.Slides...)
		events = append(events, result.Events...)
	}

	ctx := context.Background()

	p.write("sessions", len(sessions), func() error { return p.store.InsertSessions(ctx, sessions) })
	p.write("slide_dwell", len(slides), func() error { return p.store.InsertSlideDwell(ctx, slides) })
	p.write("engagement_events", len(events), func() error { return p.store.InsertEngagementEvents(ctx, events) })
}

func (p *SnapshotProcessor) write(table string, rows int, insert func() error) {
	if rows == 0 {
		return
	}

	start := time.Now()
	err := insert()
	metrics.RecordFlush(table, rows, time.Since(start), err)

	if err != nil {
		log.Error().Err(err).Str("table", table).Int("count", rows).Msg("Failed to insert rows")
		return
	}
	log.Info().
		Str("table", table).
		Int("count", rows).
		Dur("duration", time.Since(start)).
		Msg("Flushed rows to ClickHouse")
}

// Stop stops the flush loop and writes what is left
func (p *SnapshotProcessor) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
	p.Flush()
}
