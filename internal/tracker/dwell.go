package tracker

import (
	"time"

	"github.com/gosight/slidetrack/internal/model"
)

// DwellAccumulator converts slide changes and active/idle transitions into
// accumulated active seconds per slide
type DwellAccumulator struct {
	current        string
	idle           bool
	lastSlideStart time.Time // zero when no interval is open

	order   []string
	seconds map[string]float64
	titles  map[string]string
}

func NewDwellAccumulator() *DwellAccumulator {
	return &DwellAccumulator{
		seconds: make(map[string]float64),
		titles:  make(map[string]string),
	}
}

// Current returns the current slide id
func (a *DwellAccumulator) Current() string {
	return a.current
}

// SlideChanged closes the open interval on the previous slide and moves the
// pointer to slideID. The pointer moves even while idle; only crediting is
// gated by the idle flag. Reports whether seconds were credited.
func (a *DwellAccumulator) SlideChanged(slideID, title string, now time.Time) bool {
	flushed := a.flush(now)

	a.current = slideID
	a.lastSlideStart = now
	a.track(slideID, title)

	return flushed
}

// IdleTransition applies an active/idle flip. Going idle credits the current
// slide up to since and closes the interval; going active opens a new one.
func (a *DwellAccumulator) IdleTransition(idle bool, since time.Time) bool {
	if idle {
		flushed := a.flush(since)
		a.idle = true
		a.lastSlideStart = time.Time{}
		return flushed
	}

	a.idle = false
	a.lastSlideStart = since
	return false
}

// Flush credits the open interval up to now and closes it. Repeated calls
// without an intervening transition credit nothing.
func (a *DwellAccumulator) Flush(now time.Time) bool {
	flushed := a.flush(now)
	a.lastSlideStart = time.Time{}
	return flushed
}

func (a *DwellAccumulator) flush(until time.Time) bool {
	if a.idle || a.current == "" || a.lastSlideStart.IsZero() {
		return false
	}

	delta := until.Sub(a.lastSlideStart).Seconds()
	// Clock changes can make the interval negative
	if delta < 0 {
		delta = 0
	}
	a.seconds[a.current] += delta
	a.lastSlideStart = until
	return true
}

func (a *DwellAccumulator) track(slideID, title string) {
	if _, ok := a.seconds[slideID]; !ok {
		a.seconds[slideID] = 0
		a.order = append(a.order, slideID)
	}
	if title != "" {
		a.titles[slideID] = title
	}
}

// Seconds returns the accumulated seconds for slideID
func (a *DwellAccumulator) Seconds(slideID string) float64 {
	return a.seconds[slideID]
}

// Records returns one record per slide ever viewed, in first-viewed order
func (a *DwellAccumulator) Records() []model.SlideDwellRecord {
	records := make([]model.SlideDwellRecord, 0, len(a.order))
	for _, id := range a.order {
		title := a.titles[id]
		if title == "" {
			title = id
		}
		records = append(records, model.SlideDwellRecord{
			SlideID:    id,
			SlideTitle: title,
			Seconds:    a.seconds[id],
		})
	}
	return records
}

// Restore seeds accumulated seconds from a persisted mapping
func (a *DwellAccumulator) Restore(records []model.SlideDwellRecord) {
	for _, r := range records {
		a.track(r.SlideID, r.SlideTitle)
		if r.Seconds > a.seconds[r.SlideID] {
			a.seconds[r.SlideID] = r.Seconds
		}
	}
}
