package insights

import (
	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

// IdleDropOffDetector detects sessions that ended shortly after the viewer
// went idle or hid the tab, without coming back
type IdleDropOffDetector struct {
	windowMs int64
}

func NewIdleDropOffDetector(cfg config.IdleDropOffConfig) *IdleDropOffDetector {
	return &IdleDropOffDetector{windowMs: cfg.WindowMs}
}

func (d *IdleDropOffDetector) Detect(snap *model.Snapshot) *Insight {
	var idle *model.EngagementEvent
	for i := range snap.EngagementEvents {
		e := &snap.EngagementEvents[i]
		switch e.Type {
		case model.EventUserIdle, model.EventTabHidden:
			if idle == nil {
				idle = e
			}
		case model.EventActivityResumed, model.EventTabVisible:
			idle = nil
		}
	}
	if idle == nil {
		return nil
	}

	end := endedAt(snap)
	sinceIdle := end - idle.Timestamp
	if sinceIdle < 0 || sinceIdle > d.windowMs {
		return nil
	}

	insight := newInsight(TypeIdleDropOff, snap, end)
	insight.SlideID = idle.SlideID
	insight.Details = map[string]interface{}{
		"trigger":     string(idle.Type),
		"idle_to_end": sinceIdle,
		"window_ms":   d.windowMs,
	}
	insight.RelatedEventIDs = []string{idle.ID}
	return insight
}
