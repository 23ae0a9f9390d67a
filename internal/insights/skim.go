package insights

import (
	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

// SkimDetector flags slides that were shown but barely looked at
type SkimDetector struct {
	minDwellSeconds float64
}

func NewSkimDetector(cfg config.SkimConfig) *SkimDetector {
	return &SkimDetector{minDwellSeconds: cfg.MinDwellSeconds}
}

// Detect returns one insight per slide below the dwell threshold
func (d *SkimDetector) Detect(snap *model.Snapshot) []*Insight {
	var insights []*Insight
	for _, r := range snap.Slides {
		if r.Seconds >= d.minDwellSeconds {
			continue
		}

		insight := newInsight(TypeSkimmedSlide, snap, endedAt(snap))
		insight.SlideID = r.SlideID
		insight.Details = map[string]interface{}{
			"slide_title":       r.SlideTitle,
			"dwell_seconds":     r.Seconds,
			"min_dwell_seconds": d.minDwellSeconds,
		}
		insights = append(insights, insight)
	}
	return insights
}
