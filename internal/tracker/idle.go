package tracker

import (
	"time"

	"github.com/gosight/slidetrack/internal/clock"
	"github.com/gosight/slidetrack/internal/model"
)

// DefaultIdleTimeout is the inactivity window after which a viewer is idle
const DefaultIdleTimeout = 30 * time.Second

// Transition is an active/idle flip reported by the IdleDetector
type Transition struct {
	Type model.EventType
	Idle bool
	// Since is the instant the new state began. For a timed-out viewer this
	// is the last activity, not the moment the timer fired.
	Since time.Time
}

// IdleDetector turns activity and visibility signals into a two-state
// active/idle signal. It only reports transitions; it never persists or sends.
type IdleDetector struct {
	clock     clock.Clock
	timeout   time.Duration
	onElapsed func(generation uint64)

	idle         bool
	hidden       bool
	lastActivity time.Time
	timer        clock.Timer
	generation   uint64
}

// NewIdleDetector creates a detector. onElapsed is invoked from the timer
// with the generation it was armed under and must route back into Elapsed.
func NewIdleDetector(c clock.Clock, timeout time.Duration, onElapsed func(generation uint64)) *IdleDetector {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	return &IdleDetector{
		clock:     c,
		timeout:   timeout,
		onElapsed: onElapsed,
	}
}

// Start arms the timer as if activity had just been observed
func (d *IdleDetector) Start() {
	d.lastActivity = d.clock.Now()
	d.arm()
}

// IsIdle reports the current state
func (d *IdleDetector) IsIdle() bool {
	return d.idle
}

// Hidden reports whether the page is hidden
func (d *IdleDetector) Hidden() bool {
	return d.hidden
}

// LastActivity returns the time of the most recent activity signal
func (d *IdleDetector) LastActivity() time.Time {
	return d.lastActivity
}

// RecordActivity restarts the idle timer, reporting activity_resumed if the
// viewer was idle. Input delivered while the page is hidden is ignored.
func (d *IdleDetector) RecordActivity() (Transition, bool) {
	if d.hidden {
		return Transition{}, false
	}

	now := d.clock.Now()
	d.lastActivity = now

	var tr Transition
	resumed := d.idle
	if resumed {
		d.idle = false
		tr = Transition{Type: model.EventActivityResumed, Idle: false, Since: now}
	}

	d.arm()
	return tr, resumed
}

// Elapsed handles a timer fire. Fires from a cancelled timer are ignored.
func (d *IdleDetector) Elapsed(generation uint64) (Transition, bool) {
	if generation != d.generation || d.idle || d.hidden {
		return Transition{}, false
	}

	d.idle = true
	d.timer = nil
	return Transition{Type: model.EventUserIdle, Idle: true, Since: d.lastActivity}, true
}

// SetHidden applies a visibility change. Hiding forces idle immediately;
// showing forces active and restarts the timer.
func (d *IdleDetector) SetHidden(hidden bool) (Transition, bool) {
	if hidden == d.hidden {
		return Transition{}, false
	}

	now := d.clock.Now()
	d.hidden = hidden

	if hidden {
		d.disarm()
		d.idle = true
		return Transition{Type: model.EventTabHidden, Idle: true, Since: now}, true
	}

	d.idle = false
	d.lastActivity = now
	d.arm()
	return Transition{Type: model.EventTabVisible, Idle: false, Since: now}, true
}

// Stop cancels the timer. No further transitions are reported by the timer.
func (d *IdleDetector) Stop() {
	d.disarm()
}

func (d *IdleDetector) arm() {
	d.disarm()
	gen := d.generation
	d.timer = d.clock.AfterFunc(d.timeout, func() {
		d.onElapsed(gen)
	})
}

func (d *IdleDetector) disarm() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
}
