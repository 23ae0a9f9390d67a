package insights

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/slidetrack/internal/config"
	"github.com/gosight/slidetrack/internal/model"
)

const sessionStart int64 = 1_700_000_000_000

type deck struct {
	snap model.Snapshot
	seq  int
}

func newDeck(first string) *deck {
	d := &deck{snap: model.Snapshot{
		SessionID:    "sess-1",
		CustomerID:   "cust-1",
		SessionStart: sessionStart,
	}}
	d.event(model.EventSessionStart, 0, first, nil)
	return d
}

func (d *deck) event(t model.EventType, offsetMs int64, slide string, data map[string]interface{}) *deck {
	d.seq++
	d.snap.EngagementEvents = append(d.snap.EngagementEvents, model.EngagementEvent{
		ID:        fmt.Sprintf("e%d", d.seq),
		Type:      t,
		Timestamp: sessionStart + offsetMs,
		SlideID:   slide,
		Data:      data,
	})
	return d
}

func (d *deck) change(offsetMs int64, from, to string) *deck {
	return d.event(model.EventSlideChange, offsetMs, to, map[string]interface{}{"from": from, "to": to})
}

func (d *deck) slide(id string, seconds float64) *deck {
	d.snap.Slides = append(d.snap.Slides, model.SlideDwellRecord{SlideID: id, SlideTitle: "Title " + id, Seconds: seconds})
	return d
}

func (d *deck) end(offsetMs int64) *model.Snapshot {
	end := sessionStart + offsetMs
	d.snap.SessionEnd = &end
	d.snap.DurationSeconds = float64(offsetMs) / 1000
	return &d.snap
}

func TestSkimDetector(t *testing.T) {
	d := NewSkimDetector(config.SkimConfig{MinDwellSeconds: 2})

	snap := newDeck("s1").slide("s1", 3.2).slide("s2", 1.1).slide("s3", 2).end(10_000)
	insights := d.Detect(snap)

	require.Len(t, insights, 1)
	assert.Equal(t, TypeSkimmedSlide, insights[0].Type)
	assert.Equal(t, "s2", insights[0].SlideID)
	assert.Equal(t, 1.1, insights[0].Details["dwell_seconds"])
	assert.Equal(t, "Title s2", insights[0].Details["slide_title"])
	assert.Equal(t, sessionStart+10_000, insights[0].Timestamp.UnixMilli())
}

func TestRevisitDetector(t *testing.T) {
	d := NewRevisitDetector(config.RevisitConfig{MaxTimeAwayMs: 10_000})

	t.Run("quick return", func(t *testing.T) {
		snap := newDeck("s1").change(5_000, "s1", "s2").change(8_000, "s2", "s1").end(20_000)
		insights := d.Detect(snap)

		require.Len(t, insights, 1)
		assert.Equal(t, TypeSlideRevisit, insights[0].Type)
		assert.Equal(t, "s1", insights[0].SlideID)
		assert.Equal(t, "s2", insights[0].Details["navigated_to"])
		assert.Equal(t, int64(3_000), insights[0].Details["time_away_ms"])
		assert.Equal(t, []string{"e2", "e3"}, insights[0].RelatedEventIDs)
	})

	t.Run("too long away", func(t *testing.T) {
		snap := newDeck("s1").change(5_000, "s1", "s2").change(30_000, "s2", "s1").end(40_000)
		assert.Empty(t, d.Detect(snap))
	})

	t.Run("forward only", func(t *testing.T) {
		snap := newDeck("s1").change(1_000, "s1", "s2").change(2_000, "s2", "s3").end(5_000)
		assert.Empty(t, d.Detect(snap))
	})

	t.Run("later pair", func(t *testing.T) {
		snap := newDeck("s1").
			change(1_000, "s1", "s2").
			change(2_000, "s2", "s3").
			change(4_000, "s3", "s2").
			end(5_000)
		insights := d.Detect(snap)

		require.Len(t, insights, 1)
		assert.Equal(t, "s2", insights[0].SlideID)
		assert.Equal(t, []string{"e2", "e3", "e4"}, insights[0].RelatedEventIDs)
	})
}

func TestRapidSkipDetector(t *testing.T) {
	d := NewRapidSkipDetector(config.RapidSkipConfig{MinChanges: 3, TimeWindowMs: 2_000})

	t.Run("burst", func(t *testing.T) {
		snap := newDeck("s1").
			change(10_000, "s1", "s2").
			change(10_500, "s2", "s3").
			change(11_000, "s3", "s4").
			change(11_500, "s4", "s5").
			change(30_000, "s5", "s6").
			end(40_000)
		insight := d.Detect(snap)

		require.NotNil(t, insight)
		assert.Equal(t, TypeRapidSkipping, insight.Type)
		assert.Equal(t, "s5", insight.SlideID)
		assert.Equal(t, 4, insight.Details["change_count"])
		assert.Equal(t, int64(1_500), insight.Details["burst_ms"])
		assert.Equal(t, []string{"s2", "s3", "s4", "s5"}, insight.Details["slides"])
	})

	t.Run("paced reading", func(t *testing.T) {
		snap := newDeck("s1").
			change(5_000, "s1", "s2").
			change(10_000, "s2", "s3").
			change(15_000, "s3", "s4").
			end(20_000)
		assert.Nil(t, d.Detect(snap))
	})
}

func TestIdleDropOffDetector(t *testing.T) {
	d := NewIdleDropOffDetector(config.IdleDropOffConfig{WindowMs: 60_000})

	t.Run("left while idle", func(t *testing.T) {
		snap := newDeck("s1").
			event(model.EventUserIdle, 30_000, "s1", nil).
			event(model.EventTabHidden, 40_000, "s1", nil).
			end(50_000)
		insight := d.Detect(snap)

		require.NotNil(t, insight)
		assert.Equal(t, TypeIdleDropOff, insight.Type)
		assert.Equal(t, "user_idle", insight.Details["trigger"])
		assert.Equal(t, int64(20_000), insight.Details["idle_to_end"])
		assert.Equal(t, []string{"e2"}, insight.RelatedEventIDs)
	})

	t.Run("came back", func(t *testing.T) {
		snap := newDeck("s1").
			event(model.EventUserIdle, 30_000, "s1", nil).
			event(model.EventActivityResumed, 35_000, "s1", nil).
			end(50_000)
		assert.Nil(t, d.Detect(snap))
	})

	t.Run("outside window", func(t *testing.T) {
		snap := newDeck("s1").event(model.EventTabHidden, 10_000, "s1", nil).end(200_000)
		assert.Nil(t, d.Detect(snap))
	})
}
