package transformer

import (
	"encoding/json"
	"time"

	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/storage"
)

// TransformResult contains the transformed data for different tables
type TransformResult struct {
	Session storage.SessionRow
	Slides  []storage.SlideDwellRow
	Events  []storage.EngagementEventRow
}

// TransformSnapshot flattens an enriched snapshot into ClickHouse rows.
// Every row carries the receive time as its version.
func TransformSnapshot(snap *model.EnrichedSnapshot) *TransformResult {
	receivedAt := snap.ReceivedTime()

	session := storage.SessionRow{
		SessionID:         snap.SessionID,
		CustomerID:        snap.CustomerID,
		StartedAt:         time.UnixMilli(snap.SessionStart),
		DurationSeconds:   snap.DurationSeconds,
		TotalDwellSeconds: snap.TotalDwellSeconds(),
		SlidesViewed:      uint32(len(snap.Slides)),
		EventsCount:       uint32(len(snap.EngagementEvents)),
		Browser:           snap.Browser,
		BrowserVersion:    snap.BrowserVersion,
		OS:                snap.OS,
		DeviceType:        snap.DeviceType,
		ScreenWidth:       clampUint16(snap.DeviceInfo.ScreenWidth),
		ScreenHeight:      clampUint16(snap.DeviceInfo.ScreenHeight),
		Country:           snap.Country,
		City:              snap.City,
		ReceivedAt:        receivedAt,
	}
	if snap.Final() {
		session.IsFinal = 1
		session.EndedAt = time.UnixMilli(*snap.SessionEnd)
	}

	result := &TransformResult{
		Slides: make([]storage.SlideDwellRow, 0, len(snap.Slides)),
		Events: make([]storage.EngagementEventRow, 0, len(snap.EngagementEvents)),
	}

	for i, r := range snap.Slides {
		result.Slides = append(result.Slides, storage.SlideDwellRow{
			SessionID:  snap.SessionID,
			CustomerID: snap.CustomerID,
			SlideID:    r.SlideID,
			SlideTitle: r.SlideTitle,
			Position:   clampUint16(i),
			Seconds:    r.Seconds,
			ReceivedAt: receivedAt,
		})
	}

	for _, e := range snap.EngagementEvents {
		if e.Type == model.EventUserIdle || e.Type == model.EventTabHidden {
			session.IdleCount++
		}

		data := "{}"
		if len(e.Data) > 0 {
			if b, err := json.Marshal(e.Data); err == nil {
				data = string(b)
			}
		}

		result.Events = append(result.Events, storage.EngagementEventRow{
			EventID:    e.ID,
			SessionID:  snap.SessionID,
			CustomerID: snap.CustomerID,
			EventType:  string(e.Type),
			Timestamp:  time.UnixMilli(e.Timestamp),
			SlideID:    e.SlideID,
			Data:       data,
			ReceivedAt: receivedAt,
		})
	}

	result.Session = session
	return result
}

func clampUint16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
