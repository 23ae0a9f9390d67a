package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosight/slidetrack/internal/model"
)

// EventLog is the append-only, timestamp-ordered engagement event record of
// one session
type EventLog struct {
	events []model.EngagementEvent
	newID  func() string
}

func NewEventLog(newID func() string) *EventLog {
	if newID == nil {
		newID = uuid.NewString
	}
	return &EventLog{newID: newID}
}

// Append records an event at ts. A timestamp earlier than the last entry's
// is raised to it so the log stays ordered across clock changes.
func (l *EventLog) Append(eventType model.EventType, slideID string, ts time.Time, data map[string]interface{}) model.EngagementEvent {
	if data == nil {
		data = map[string]interface{}{}
	}

	millis := ts.UnixMilli()
	if n := len(l.events); n > 0 && millis < l.events[n-1].Timestamp {
		millis = l.events[n-1].Timestamp
	}

	event := model.EngagementEvent{
		ID:        l.newID(),
		Type:      eventType,
		Timestamp: millis,
		SlideID:   slideID,
		Data:      data,
	}
	l.events = append(l.events, event)
	return event
}

// All returns the full ordered sequence
func (l *EventLog) All() []model.EngagementEvent {
	out := make([]model.EngagementEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *EventLog) Len() int {
	return len(l.events)
}

// Restore seeds the log with events persisted by an earlier load
func (l *EventLog) Restore(events []model.EngagementEvent) {
	l.events = append(l.events[:0:0], events...)
}
