package tracker

import (
	"context"
)

// Loop owns a Tracker and feeds it signals from a single goroutine, so timer
// fires, host notifications and browser signals are handled strictly in
// arrival order.
type Loop struct {
	tracker *Tracker
	signals chan Signal
	done    chan struct{}
}

// NewLoop takes ownership of t. Call it before t.Start, since the idle timer
// armed by Start reads the dispatcher from another goroutine. After Run
// begins, t must only be touched through the Loop.
func NewLoop(t *Tracker, buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	l := &Loop{
		tracker: t,
		signals: make(chan Signal, buffer),
		done:    make(chan struct{}),
	}
	t.dispatch = func(sig Signal) {
		l.Post(sig)
	}
	return l
}

// Post enqueues a signal. It reports false once the loop has exited.
func (l *Loop) Post(sig Signal) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.signals <- sig:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed when Run returns
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run handles signals until the session terminates or ctx is cancelled.
// Cancellation tears the session down as an explicit teardown.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			if l.tracker.state.Phase.Open() {
				l.tracker.Terminate(context.Background(), "teardown")
			}
			return ctx.Err()

		case sig := <-l.signals:
			l.tracker.Handle(sig)
			if l.tracker.state.Phase == StateTerminated {
				return nil
			}
		}
	}
}
