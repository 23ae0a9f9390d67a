package insights

import (
	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

// RevisitDetector detects a viewer leaving a slide and quickly coming back
// to it (A -> B -> A)
type RevisitDetector struct {
	maxTimeAwayMs int64
}

type slideVisit struct {
	SlideID   string
	Timestamp int64
	EventID   string
}

func NewRevisitDetector(cfg config.RevisitConfig) *RevisitDetector {
	return &RevisitDetector{maxTimeAwayMs: cfg.MaxTimeAwayMs}
}

func (d *RevisitDetector) Detect(snap *model.Snapshot) []*Insight {
	changes := slideChanges(snap)
	if len(changes) < 2 {
		return nil
	}

	visits := make([]slideVisit, 0, len(changes)+1)
	if from := stringData(changes[0], "from"); from != "" {
		visits = append(visits, slideVisit{SlideID: from, Timestamp: snap.SessionStart})
	}

	var insights []*Insight
	for _, c := range changes {
		current := slideVisit{SlideID: c.SlideID, Timestamp: c.Timestamp, EventID: c.ID}

		if n := len(visits); n >= 2 {
			last := visits[n-1]
			secondLast := visits[n-2]

			if current.SlideID == secondLast.SlideID {
				timeAway := current.Timestamp - last.Timestamp

				if timeAway > 0 && timeAway <= d.maxTimeAwayMs {
					insight := newInsight(TypeSlideRevisit, snap, current.Timestamp)
					insight.SlideID = current.SlideID
					insight.Details = map[string]interface{}{
						"original_slide": secondLast.SlideID,
						"navigated_to":   last.SlideID,
						"time_away_ms":   timeAway,
					}
					insight.RelatedEventIDs = nonEmpty(secondLast.EventID, last.EventID, current.EventID)
					insights = append(insights, insight)
				}
			}
		}

		visits = append(visits, current)
	}

	return insights
}

func nonEmpty(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
