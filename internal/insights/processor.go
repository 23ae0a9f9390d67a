package insights

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/metrics"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/storage"
)

const (
	dedupePrefix = "insights:session:"
	dedupeTTL    = 24 * time.Hour
	bufferSize   = 100
)

// InsightStore persists detected insights
type InsightStore interface {
	InsertInsights(ctx context.Context, insights []storage.InsightRow) error
}

// AlertPublisher forwards insights to downstream consumers
type AlertPublisher interface {
	ProduceAlert(ctx context.Context, key string, alert interface{}) error
}

// Processor runs every enabled detector over final snapshots
type Processor struct {
	skim        *SkimDetector
	revisit     *RevisitDetector
	rapidSkip   *RapidSkipDetector
	idleDropOff *IdleDropOffDetector

	store  InsightStore
	redis  *redis.Client
	alerts AlertPublisher

	// Buffer for batch inserts
	insightBuffer []storage.InsightRow
	mu            sync.Mutex
	lastFlush     time.Time
	done          chan struct{}
	stopOnce      sync.Once

	newID func() uuid.UUID
}

// NewProcessor creates a new insight processor. rdb and alerts may be nil.
func NewProcessor(store InsightStore, rdb *redis.Client, alerts AlertPublisher, cfg config.InsightsConfig) *Processor {
	p := &Processor{
		store:         store,
		redis:         rdb,
		alerts:        alerts,
		insightBuffer: make([]storage.InsightRow, 0, bufferSize),
		lastFlush:     time.Now(),
		done:          make(chan struct{}),
		newID:         uuid.New,
	}

	// Initialize detectors based on config
	if cfg.Skim.Enabled {
		p.skim = NewSkimDetector(cfg.Skim)
	}
	if cfg.Revisit.Enabled {
		p.revisit = NewRevisitDetector(cfg.Revisit)
	}
	if cfg.RapidSkip.Enabled {
		p.rapidSkip = NewRapidSkipDetector(cfg.RapidSkip)
	}
	if cfg.IdleDropOff.Enabled {
		p.idleDropOff = NewIdleDropOffDetector(cfg.IdleDropOff)
	}

	// Start flush ticker
	go p.flushLoop()

	return p
}

// Process analyses one snapshot. Periodic snapshots are skipped; a session is
// analysed once, on its first final snapshot.
func (p *Processor) Process(ctx context.Context, snap *model.EnrichedSnapshot) error {
	metrics.RecordProcessed("insights")

	if !snap.Final() {
		return nil
	}

	first, err := p.claim(ctx, snap.SessionID)
	if err != nil {
		return err
	}
	if !first {
		log.Debug().Str("session_id", snap.SessionID).Msg("Session already analysed")
		return nil
	}

	for _, insight := range p.Detect(&snap.Snapshot) {
		p.storeInsight(ctx, insight)
	}
	return nil
}

// Detect runs the enabled detectors over a final snapshot
func (p *Processor) Detect(snap *model.Snapshot) []*Insight {
	if !snap.Final() {
		return nil
	}

	var insights []*Insight
	if p.skim != nil {
		insights = append(insights, p.skim.Detect(snap)...)
	}
	if p.revisit != nil {
		insights = append(insights, p.revisit.Detect(snap)...)
	}
	if p.rapidSkip != nil {
		if insight := p.rapidSkip.Detect(snap); insight != nil {
			insights = append(insights, insight)
		}
	}
	if p.idleDropOff != nil {
		if insight := p.idleDropOff.Detect(snap); insight != nil {
			insights = append(insights, insight)
		}
	}
	return insights
}

// claim marks the session as analysed, reporting whether this call was first
func (p *Processor) claim(ctx context.Context, sessionID string) (bool, error) {
	if p.redis == nil {
		return true, nil
	}
	return p.redis.SetNX(ctx, dedupePrefix+sessionID, time.Now().UnixMilli(), dedupeTTL).Result()
}

func (p *Processor) storeInsight(ctx context.Context, insight *Insight) {
	row := storage.InsightRow{
		InsightID:       p.newID(),
		CustomerID:      insight.CustomerID,
		SessionID:       insight.SessionID,
		InsightType:     insight.Type,
		Timestamp:       insight.Timestamp,
		SlideID:         insight.SlideID,
		Details:         insight.Details,
		RelatedEventIDs: insight.RelatedEventIDs,
	}

	p.mu.Lock()
	p.insightBuffer = append(p.insightBuffer, row)
	shouldFlush := len(p.insightBuffer) >= bufferSize
	p.mu.Unlock()

	if shouldFlush {
		p.Flush()
	}

	metrics.RecordInsight(insight.Type)
	p.publishAlert(ctx, insight, row.InsightID)

	log.Info().
		Str("type", insight.Type).
		Str("session_id", insight.SessionID).
		Str("slide_id", insight.SlideID).
		Msg("Insight detected")
}

// publishAlert publishes an insight alert for downstream alert processing
func (p *Processor) publishAlert(ctx context.Context, insight *Insight, insightID uuid.UUID) {
	if p.alerts == nil {
		return
	}

	alert := map[string]interface{}{
		"insight_id":   insightID.String(),
		"type":         insight.Type,
		"customer_id":  insight.CustomerID,
		"session_id":   insight.SessionID,
		"timestamp":    insight.Timestamp.UnixMilli(),
		"slide_id":     insight.SlideID,
		"details":      insight.Details,
		"published_at": time.Now().UnixMilli(),
	}

	if err := p.alerts.ProduceAlert(ctx, insight.CustomerID, alert); err != nil {
		log.Error().Err(err).Str("type", insight.Type).Msg("Failed to publish alert")
		return
	}
	log.Debug().Str("type", insight.Type).Str("customer_id", insight.CustomerID).Msg("Alert published")
}

func (p *Processor) flushLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.Flush()
		}
	}
}

// Flush writes buffered insights to ClickHouse
func (p *Processor) Flush() {
	p.mu.Lock()
	if len(p.insightBuffer) == 0 {
		p.mu.Unlock()
		return
	}

	insights := p.insightBuffer
	p.insightBuffer = make([]storage.InsightRow, 0, bufferSize)
	p.lastFlush = time.Now()
	p.mu.Unlock()

	start := time.Now()
	err := p.store.InsertInsights(context.Background(), insights)
	metrics.RecordFlush("insights", len(insights), time.Since(start), err)

	if err != nil {
		log.Error().Err(err).Int("count", len(insights)).Msg("Failed to insert insights")
	} else {
		log.Info().Int("count", len(insights)).Msg("Flushed insights to ClickHouse")
	}
}

// Stop stops the flush loop and writes what is left
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.Flush()
}
