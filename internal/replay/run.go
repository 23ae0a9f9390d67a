package replay

import (
	"context"
	"errors"
	"time"

	"github.com/gosight/slidetrack/internal/clock"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/tracker"
)

const teardownReason = "teardown"

// Virtual replays s against t, which must have been built on c. Time only
// moves when the script says so, so idle timeouts fire deterministically.
// A script without an unload step is torn down after its last step.
func Virtual(ctx context.Context, s *Script, t *tracker.Tracker, c *clock.Fake) (model.Snapshot, error) {
	if err := t.Start(ctx, tracker.SlideChanged{SlideID: s.InitialSlide.ID, Title: s.InitialSlide.Title}); err != nil {
		return model.Snapshot{}, err
	}

	var elapsed time.Duration
	for _, step := range s.Steps {
		c.Advance(step.At - elapsed)
		elapsed = step.At

		sig, err := step.ToSignal()
		if err != nil {
			return model.Snapshot{}, err
		}

		if u, ok := sig.(tracker.Unload); ok {
			t.WaitForDeliveries()
			return t.Terminate(ctx, u.Reason)
		}
		t.Handle(sig)
		t.WaitForDeliveries()
	}

	return t.Terminate(ctx, teardownReason)
}

// Realtime replays s against t on the wall clock through a Loop, sleeping
// between steps. Cancelling ctx tears the session down.
func Realtime(ctx context.Context, s *Script, t *tracker.Tracker) (model.Snapshot, error) {
	// The loop must own dispatch before Start arms the idle timer
	loop := tracker.NewLoop(t, 0)
	if err := t.Start(ctx, tracker.SlideChanged{SlideID: s.InitialSlide.ID, Title: s.InitialSlide.Title}); err != nil {
		return model.Snapshot{}, err
	}

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(loopCtx) }()

	started := time.Now()
	for _, step := range s.Steps {
		sig, err := step.ToSignal()
		if err != nil {
			stop()
			<-loop.Done()
			return model.Snapshot{}, err
		}

		timer := time.NewTimer(time.Until(started.Add(step.At)))
		select {
		case <-timer.C:
		case <-loop.Done():
			timer.Stop()
		}
		if !loop.Post(sig) {
			break
		}
	}

	if n := len(s.Steps); n > 0 && s.Steps[n-1].Signal == SignalUnload {
		<-loop.Done()
	}

	// Scripts without an unload end with a teardown
	stop()
	<-loop.Done()
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return model.Snapshot{}, err
	}

	t.WaitForDeliveries()
	return t.Snapshot(), nil
}
