package insights

import (
	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

// RapidSkipDetector detects bursts of slide changes, a viewer paging through
// the deck without reading it
type RapidSkipDetector struct {
	minChanges   int
	timeWindowMs int64
}

func NewRapidSkipDetector(cfg config.RapidSkipConfig) *RapidSkipDetector {
	return &RapidSkipDetector{
		minChanges:   cfg.MinChanges,
		timeWindowMs: cfg.TimeWindowMs,
	}
}

// Detect reports the largest burst of at least minChanges slide changes
// inside the time window, at most once per session
func (d *RapidSkipDetector) Detect(snap *model.Snapshot) *Insight {
	changes := slideChanges(snap)
	if d.minChanges <= 0 || len(changes) < d.minChanges {
		return nil
	}

	bestStart, bestLen := 0, 0
	start := 0
	for end := range changes {
		for changes[end].Timestamp-changes[start].Timestamp > d.timeWindowMs {
			start++
		}
		if n := end - start + 1; n > bestLen {
			bestStart, bestLen = start, n
		}
	}

	if bestLen < d.minChanges {
		return nil
	}

	burst := changes[bestStart : bestStart+bestLen]
	slides := make([]string, 0, len(burst))
	ids := make([]string, 0, len(burst))
	for _, c := range burst {
		slides = append(slides, c.SlideID)
		ids = append(ids, c.ID)
	}

	last := burst[len(burst)-1]
	insight := newInsight(TypeRapidSkipping, snap, last.Timestamp)
	insight.SlideID = last.SlideID
	insight.Details = map[string]interface{}{
		"change_count":   len(burst),
		"time_window_ms": d.timeWindowMs,
		"burst_ms":       last.Timestamp - burst[0].Timestamp,
		"slides":         slides,
	}
	insight.RelatedEventIDs = ids
	return insight
}
