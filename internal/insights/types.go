package insights

import (
	"time"

	"github.com/gosight/slidetrack/internal/model"
)

const (
	TypeSkimmedSlide  = "skimmed_slide"
	TypeSlideRevisit  = "slide_revisit"
	TypeRapidSkipping = "rapid_skipping"
	TypeIdleDropOff   = "idle_drop_off"
)

// Insight represents a detected engagement insight
type Insight struct {
	Type            string
	CustomerID      string
	SessionID       string
	Timestamp       time.Time
	SlideID         string
	Details         map[string]interface{}
	RelatedEventIDs []string
}

func newInsight(insightType string, snap *model.Snapshot, ts int64) *Insight {
	return &Insight{
		Type:       insightType,
		CustomerID: snap.CustomerID,
		SessionID:  snap.SessionID,
		Timestamp:  time.UnixMilli(ts),
	}
}

// endedAt is the session end, or the snapshot time for a session still open
func endedAt(snap *model.Snapshot) int64 {
	if snap.SessionEnd != nil {
		return *snap.SessionEnd
	}
	return snap.SessionStart + int64(snap.DurationSeconds*1000)
}

// slideChanges returns the slide_change events in log order
func slideChanges(snap *model.Snapshot) []model.EngagementEvent {
	var changes []model.EngagementEvent
	for _, e := range snap.EngagementEvents {
		if e.Type == model.EventSlideChange {
			changes = append(changes, e)
		}
	}
	return changes
}

func stringData(e model.EngagementEvent, key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}
