package model

import (
	"time"
)

// EventType enumerates the engagement events a tracker records
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventSlideChange     EventType = "slide_change"
	EventUserIdle        EventType = "user_idle"
	EventActivityResumed EventType = "activity_resumed"
	EventTabHidden       EventType = "tab_hidden"
	EventTabVisible      EventType = "tab_visible"
	EventSessionEnd      EventType = "session_end"
)

var knownEventTypes = map[EventType]bool{
	EventSessionStart:    true,
	EventSlideChange:     true,
	EventUserIdle:        true,
	EventActivityResumed: true,
	EventTabHidden:       true,
	EventTabVisible:      true,
	EventSessionEnd:      true,
}

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	return knownEventTypes[t]
}

// Session is one continuous viewing visit by one tab for one customer
type Session struct {
	SessionID  string `json:"sessionId"`
	CustomerID string `json:"customerId"`
	StartedAt  int64  `json:"startedAt"`
	EndedAt    *int64 `json:"endedAt"`
}

// Open reports whether the session has not been finalized
func (s Session) Open() bool {
	return s.EndedAt == nil
}

// SlideDwellRecord holds accumulated active seconds for one slide
type SlideDwellRecord struct {
	SlideID    string  `json:"slideId" validate:"required"`
	SlideTitle string  `json:"slideTitle"`
	Seconds    float64 `json:"seconds" validate:"gte=0"`
}

// EngagementEvent is an immutable log entry
type EngagementEvent struct {
	ID        string                 `json:"id" validate:"required"`
	Type      EventType              `json:"type" validate:"required,event_type"`
	Timestamp int64                  `json:"timestamp" validate:"gt=0"`
	SlideID   string                 `json:"slideId"`
	Data      map[string]interface{} `json:"data"`
}

// DeviceInfo is static metadata about the viewing device
type DeviceInfo struct {
	UserAgent    string `json:"userAgent"`
	ScreenWidth  int    `json:"screenWidth" validate:"gte=0"`
	ScreenHeight int    `json:"screenHeight" validate:"gte=0"`
	IsMobile     bool   `json:"isMobile"`
}

// Snapshot is the full, self-contained payload delivered to the collector
type Snapshot struct {
	SessionID        string             `json:"sessionId" validate:"required"`
	CustomerID       string             `json:"customerId" validate:"required"`
	SessionStart     int64              `json:"sessionStart" validate:"gt=0"`
	SessionEnd       *int64             `json:"sessionEnd"`
	DurationSeconds  float64            `json:"durationSeconds" validate:"gte=0"`
	Slides           []SlideDwellRecord `json:"slides" validate:"dive"`
	EngagementEvents []EngagementEvent  `json:"engagementEvents" validate:"dive"`
	DeviceInfo       DeviceInfo         `json:"deviceInfo"`
}

// Final reports whether this snapshot was taken at session termination
func (s *Snapshot) Final() bool {
	return s.SessionEnd != nil
}

// TotalDwellSeconds sums the seconds of every slide record
func (s *Snapshot) TotalDwellSeconds() float64 {
	var total float64
	for _, r := range s.Slides {
		total += r.Seconds
	}
	return total
}

// Slide returns the dwell record for slideID, if present
func (s *Snapshot) Slide(slideID string) (SlideDwellRecord, bool) {
	for _, r := range s.Slides {
		if r.SlideID == slideID {
			return r, true
		}
	}
	return SlideDwellRecord{}, false
}

// EventTypes lists the event types in log order
func (s *Snapshot) EventTypes() []EventType {
	types := make([]EventType, 0, len(s.EngagementEvents))
	for _, e := range s.EngagementEvents {
		types = append(types, e.Type)
	}
	return types
}

// EnrichedSnapshot is a snapshot as received and annotated by the collector
type EnrichedSnapshot struct {
	Snapshot

	ReceivedAt     int64  `json:"received_at"`
	Transport      string `json:"transport"`
	ClientIP       string `json:"client_ip,omitempty"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	DeviceType     string `json:"device_type"`
	Country        string `json:"country"`
	City           string `json:"city"`
}

// ReceivedTime returns ReceivedAt as a time.Time
func (e *EnrichedSnapshot) ReceivedTime() time.Time {
	return time.UnixMilli(e.ReceivedAt)
}

// Millis converts t to milliseconds since the epoch
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
