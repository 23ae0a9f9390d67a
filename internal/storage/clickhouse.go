package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/gosight/slidetrack/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// SessionRow represents a row in the sessions table. Rows for the same
// session collapse on received_at.
type SessionRow struct {
	SessionID         string
	CustomerID        string
	StartedAt         time.Time
	EndedAt           time.Time
	IsFinal           uint8
	DurationSeconds   float64
	TotalDwellSeconds float64
	SlidesViewed      uint32
	EventsCount       uint32
	IdleCount         uint32
	Browser           string
	BrowserVersion    string
	OS                string
	DeviceType        string
	ScreenWidth       uint16
	ScreenHeight      uint16
	Country           string
	City              string
	ReceivedAt        time.Time
}

// SlideDwellRow represents a row in the slide_dwell table
type SlideDwellRow struct {
	SessionID  string
	CustomerID string
	SlideID    string
	SlideTitle string
	Position   uint16
	Seconds    float64
	ReceivedAt time.Time
}

// EngagementEventRow represents a row in the engagement_events table
type EngagementEventRow struct {
	EventID    string
	SessionID  string
	CustomerID string
	EventType  string
	Timestamp  time.Time
	SlideID    string
	Data       string
	ReceivedAt time.Time
}

// DeliveryRow represents a row in the session_deliveries table
type DeliveryRow struct {
	SessionID       string
	CustomerID      string
	Deliveries      uint32
	OutOfOrder      uint32
	FirstReceivedAt time.Time
	LastReceivedAt  time.Time
	EndedAt         time.Time
	FinalReceived   uint8
	Transport       string
}

// InsightRow represents a row in the insights table
type InsightRow struct {
	InsightID       uuid.UUID
	CustomerID      string
	SessionID       string
	InsightType     string
	Timestamp       time.Time
	SlideID         string
	Details         map[string]interface{}
	RelatedEventIDs []string
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

// Migrate creates the tables if they do not exist
func (c *ClickHouse) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClickHouse) InsertSessions(ctx context.Context, sessions []SessionRow) error {
	if len(sessions) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO sessions (
			session_id, customer_id, started_at, ended_at, is_final,
			duration_seconds, total_dwell_seconds, slides_viewed, events_count, idle_count,
			browser, browser_version, os, device_type, screen_width, screen_height,
			country, city, received_at
		)
	`)
	if err != nil {
		return err
	}

	for _, s := range sessions {
		err := batch.Append(
			s.SessionID, s.CustomerID, s.StartedAt, s.EndedAt, s.IsFinal,
			s.DurationSeconds, s.TotalDwellSeconds, s.SlidesViewed, s.EventsCount, s.IdleCount,
			s.Browser, s.BrowserVersion, s.OS, s.DeviceType, s.ScreenWidth, s.ScreenHeight,
			s.Country, s.City, s.ReceivedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertSlideDwell(ctx context.Context, rows []SlideDwellRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO slide_dwell (
			session_id, customer_id, slide_id, slide_title, position, seconds, received_at
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.SessionID, r.CustomerID, r.SlideID, r.SlideTitle, r.Position, r.Seconds, r.ReceivedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertEngagementEvents(ctx context.Context, events []EngagementEventRow) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO engagement_events (
			event_id, session_id, customer_id, event_type, timestamp, slide_id, data, received_at
		)
	`)
	if err != nil {
		return err
	}

	for _, e := range events {
		err := batch.Append(
			e.EventID, e.SessionID, e.CustomerID, e.EventType, e.Timestamp, e.SlideID, e.Data, e.ReceivedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) UpsertDelivery(ctx context.Context, d DeliveryRow) error {
	return c.conn.Exec(ctx, `
		INSERT INTO session_deliveries (
			session_id, customer_id, deliveries, out_of_order,
			first_received_at, last_received_at, ended_at, final_received, transport
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.SessionID, d.CustomerID, d.Deliveries, d.OutOfOrder,
		d.FirstReceivedAt, d.LastReceivedAt, d.EndedAt, d.FinalReceived, d.Transport,
	)
}

func (c *ClickHouse) InsertInsights(ctx context.Context, insights []InsightRow) error {
	if len(insights) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO insights (
			insight_id, customer_id, session_id, insight_type, timestamp,
			slide_id, details, related_event_ids
		)
	`)
	if err != nil {
		return err
	}

	for _, i := range insights {
		details, err := json.Marshal(i.Details)
		if err != nil {
			return err
		}
		err = batch.Append(
			i.InsightID, i.CustomerID, i.SessionID, i.InsightType, i.Timestamp,
			i.SlideID, string(details), i.RelatedEventIDs,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
