package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/slidetrack/internal/model"
)

func waitDone(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit")
	}
}

func TestLoop_UnloadEndsRun(t *testing.T) {
	h := newHarness(t)
	loop := NewLoop(h.tracker, 8)
	h.start("A")

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(context.Background()) }()

	require.True(t, loop.Post(SlideChanged{SlideID: "B"}))
	require.True(t, loop.Post(Unload{Reason: "pagehide"}))
	waitDone(t, loop)

	assert.NoError(t, <-errCh)
	assert.False(t, loop.Post(Activity{Kind: ActivityClick}))

	h.tracker.WaitForDeliveries()
	history, err := h.store.History(context.Background(), "cust_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []model.EventType{
		model.EventSessionStart,
		model.EventSlideChange,
		model.EventSessionEnd,
	}, history[0].EventTypes())
	assert.Equal(t, "pagehide", history[0].EngagementEvents[2].Data["reason"])
}

func TestLoop_TimerFiresAreRoutedThroughLoop(t *testing.T) {
	h := newHarness(t)
	loop := NewLoop(h.tracker, 8)
	h.start("A")

	go loop.Run(context.Background())

	h.clock.Advance(DefaultIdleTimeout)
	require.True(t, loop.Post(Unload{}))
	waitDone(t, loop)
	h.tracker.WaitForDeliveries()

	history, err := h.store.History(context.Background(), "cust_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []model.EventType{
		model.EventSessionStart,
		model.EventUserIdle,
		model.EventSessionEnd,
	}, history[0].EventTypes())
}

func TestLoop_CancelTearsDown(t *testing.T) {
	h := newHarness(t)
	loop := NewLoop(h.tracker, 8)
	h.start("A")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	cancel()
	waitDone(t, loop)
	assert.ErrorIs(t, <-errCh, context.Canceled)

	h.tracker.WaitForDeliveries()
	assert.Equal(t, StateTerminated, h.tracker.State().Phase)

	history, err := h.store.History(context.Background(), "cust_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	end := history[0].EngagementEvents[len(history[0].EngagementEvents)-1]
	assert.Equal(t, "teardown", end.Data["reason"])
}
