package tracker

// Signal is one input to the tracker's dispatcher. Raw browser listeners are
// adapted into these at the boundary.
type Signal interface {
	signal()
}

type ActivityKind string

const (
	ActivityClick       ActivityKind = "click"
	ActivityScroll      ActivityKind = "scroll"
	ActivityKeyDown     ActivityKind = "keydown"
	ActivityPointerMove ActivityKind = "pointermove"
)

// Activity is a raw user-input signal
type Activity struct {
	Kind ActivityKind
	// Data is a small free-form payload, e.g. click coordinates
	Data map[string]interface{}
}

// VisibilityChanged reports the document becoming hidden or visible
type VisibilityChanged struct {
	Hidden bool
}

// SlideChanged reports the host carousel showing a new slide
type SlideChanged struct {
	SlideID string
	Title   string
}

// Unload reports page unload or explicit teardown
type Unload struct {
	Reason string
}

// idleElapsed is posted by the idle timer. Stale generations are dropped.
type idleElapsed struct {
	generation uint64
}

func (Activity) signal()          {}
func (VisibilityChanged) signal() {}
func (SlideChanged) signal()      {}
func (Unload) signal()            {}
func (idleElapsed) signal()       {}
