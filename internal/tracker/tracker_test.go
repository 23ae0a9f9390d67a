package tracker

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/persistence"
)

func TestTracker_NoCustomerIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.tracker = h.newTracker("")

	err := h.tracker.Start(context.Background(), SlideChanged{SlideID: "A"})
	assert.ErrorIs(t, err, ErrNoCustomer)

	h.handle(Activity{Kind: ActivityClick})
	h.handle(SlideChanged{SlideID: "B"})
	h.advance(time.Hour)

	assert.Equal(t, StateUninitialized, h.tracker.State().Phase)
	assert.Equal(t, 0, h.clock.Pending())
	assert.Empty(t, h.sender.all())
	assert.Zero(t, h.identity.Len())
	assert.Zero(t, h.history.Len())
}

func TestTracker_StartMintsSession(t *testing.T) {
	h := newHarness(t)
	h.start("A")

	st := h.tracker.State()
	assert.Equal(t, StateActive, st.Phase)
	assert.False(t, st.Resumed)
	assert.NotEmpty(t, st.Session.SessionID)
	assert.Equal(t, "cust_1", st.Session.CustomerID)
	assert.Equal(t, epoch.UnixMilli(), st.Session.StartedAt)
	assert.True(t, st.Session.Open())

	id, err := h.store.LoadIdentity(context.Background(), "cust_1")
	require.NoError(t, err)
	assert.Equal(t, st.Session.SessionID, id.SessionID)

	snap := h.tracker.Snapshot()
	assert.Equal(t, []model.EventType{model.EventSessionStart}, snap.EventTypes())
	assert.Empty(t, h.sender.all(), "a fresh session sends nothing until something happens")

	assert.ErrorIs(t, h.tracker.Start(context.Background(), SlideChanged{}), ErrAlreadyOpen)
}

func TestTracker_SnapshotOnSlideChange(t *testing.T) {
	h := newHarness(t)
	h.start("A")

	h.advance(5 * time.Second)
	h.handle(SlideChanged{SlideID: "B", Title: "Pricing"})

	snap := h.sender.last(t)
	assert.InDelta(t, 5.0, seconds(t, snap, "A"), 1e-9)
	assert.Zero(t, seconds(t, snap, "B"))
	assert.Nil(t, snap.SessionEnd)

	types := snap.EventTypes()
	require.NotEmpty(t, types)
	last := snap.EngagementEvents[len(types)-1]
	assert.Equal(t, model.EventSlideChange, last.Type)
	assert.Equal(t, "B", last.SlideID)
	assert.Equal(t, "A", last.Data["from"])
	assert.Equal(t, "B", last.Data["to"])
}

func TestTracker_SameSlideIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.start("A")

	h.advance(time.Second)
	h.handle(SlideChanged{SlideID: "A"})
	h.handle(SlideChanged{SlideID: ""})

	assert.Empty(t, h.sender.all())
	assert.Equal(t, 1, len(h.tracker.Snapshot().EngagementEvents))
}

func TestTracker_FirstSlideWithoutInitialIsNotAChange(t *testing.T) {
	h := newHarness(t)
	h.start("")

	h.advance(time.Second)
	h.handle(SlideChanged{SlideID: "A"})
	h.advance(2 * time.Second)
	h.handle(SlideChanged{SlideID: "B"})

	snap := h.sender.last(t)
	assert.Equal(t, []model.EventType{model.EventSessionStart, model.EventSlideChange}, snap.EventTypes())
	assert.InDelta(t, 2.0, seconds(t, snap, "A"), 1e-9)
}

func TestTracker_IdleBoundary(t *testing.T) {
	h := newHarness(t)
	h.start("A")

	h.advance(DefaultIdleTimeout - time.Millisecond)
	assert.Equal(t, StateActive, h.tracker.State().Phase)

	h.advance(time.Millisecond)
	assert.Equal(t, StateIdle, h.tracker.State().Phase)

	h.advance(10 * time.Minute)
	h.handle(Activity{Kind: ActivityPointerMove})
	h.handle(Activity{Kind: ActivityScroll})

	snap := h.tracker.Snapshot()
	assert.Equal(t, []model.EventType{
		model.EventSessionStart,
		model.EventUserIdle,
		model.EventActivityResumed,
	}, snap.EventTypes())
	assert.Equal(t, "pointermove", snap.EngagementEvents[2].Data["trigger"])
	assert.Equal(t, StateActive, h.tracker.State().Phase)

	// no idle time is credited
	assert.Zero(t, seconds(t, snap, "A"))
	assert.Len(t, h.sender.all(), 2)
}

func TestTracker_TabHiddenFreezesDwell(t *testing.T) {
	h := newHarness(t)
	h.start("A")

	h.advance(2 * time.Second)
	h.handle(VisibilityChanged{Hidden: true})
	h.advance(10 * time.Second)
	// input while hidden does not resume
	h.handle(Activity{Kind: ActivityKeyDown})
	h.handle(VisibilityChanged{Hidden: false})
	h.advance(3 * time.Second)

	final := h.terminate()
	assert.InDelta(t, 5.0, seconds(t, final, "A"), 1e-9)
	assert.Equal(t, []model.EventType{
		model.EventSessionStart,
		model.EventTabHidden,
		model.EventTabVisible,
		model.EventSessionEnd,
	}, final.EventTypes())
}

func TestTracker_HiddenTabNeverTimesOut(t *testing.T) {
	h := newHarness(t)
	h.start("A")

	h.handle(VisibilityChanged{Hidden: true})
	h.advance(5 * time.Minute)

	snap := h.tracker.Snapshot()
	assert.NotContains(t, snap.EventTypes(), model.EventUserIdle)
	assert.Equal(t, StateIdle, h.tracker.State().Phase)
}

// A page opens on s1, the viewer clicks to s2 after 3.2s, idles out, comes
// back and closes the page 1.1s later.
func TestTracker_EndToEndScenario(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.Start(context.Background(), SlideChanged{SlideID: "s1", Title: "Intro"}))

	h.advance(3200 * time.Millisecond)
	h.handle(Activity{Kind: ActivityClick, Data: map[string]interface{}{"x": 10, "y": 20}})
	h.handle(SlideChanged{SlideID: "s2"})

	h.advance(DefaultIdleTimeout)
	require.Equal(t, StateIdle, h.tracker.State().Phase)

	h.handle(Activity{Kind: ActivityPointerMove})
	h.advance(1100 * time.Millisecond)
	h.handle(Unload{})

	assert.Equal(t, StateTerminated, h.tracker.State().Phase)

	history, err := h.store.History(context.Background(), "cust_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	final := history[0]

	assert.InDelta(t, 3.2, seconds(t, final, "s1"), 1e-9)
	assert.InDelta(t, 1.1, seconds(t, final, "s2"), 1e-9)
	assert.InDelta(t, 34.3, final.DurationSeconds, 1e-9)
	require.NotNil(t, final.SessionEnd)
	assert.Equal(t, epoch.Add(34300*time.Millisecond).UnixMilli(), *final.SessionEnd)

	assert.Equal(t, []model.EventType{
		model.EventSessionStart,
		model.EventSlideChange,
		model.EventUserIdle,
		model.EventActivityResumed,
		model.EventSessionEnd,
	}, final.EventTypes())

	end := final.EngagementEvents[4]
	assert.Equal(t, "unload", end.Data["reason"])
	assert.Equal(t, true, end.Data["finalSendOk"])

	// the collector's copy of the final snapshot precedes session_end
	remote := h.sender.last(t)
	assert.True(t, remote.Final())
	assert.NotContains(t, remote.EventTypes(), model.EventSessionEnd)
	assert.InDelta(t, 34.3, remote.DurationSeconds, 1e-9)

	_, err = h.store.LoadIdentity(context.Background(), "cust_1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestTracker_FinalSendFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	h.sender.setFail(true)

	h.advance(time.Second)
	final := h.terminate()

	end := final.EngagementEvents[len(final.EngagementEvents)-1]
	assert.Equal(t, model.EventSessionEnd, end.Type)
	assert.Equal(t, false, end.Data["finalSendOk"])

	history, err := h.store.History(context.Background(), "cust_1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTracker_NothingAfterTermination(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	h.terminate()
	sent := len(h.sender.all())

	h.handle(Activity{Kind: ActivityClick})
	h.handle(SlideChanged{SlideID: "B"})
	h.handle(VisibilityChanged{Hidden: true})
	h.handle(Unload{})
	h.advance(time.Hour)

	assert.Len(t, h.sender.all(), sent)
	_, err := h.tracker.Terminate(context.Background(), "again")
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestTracker_TerminateBeforeStart(t *testing.T) {
	h := newHarness(t)
	_, err := h.tracker.Terminate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestTracker_ResumeAfterReload(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	h.advance(4 * time.Second)
	h.handle(SlideChanged{SlideID: "B"})
	h.advance(2 * time.Second)
	h.handle(VisibilityChanged{Hidden: true})

	first := h.tracker.State().Session
	// page reload: the old tracker is discarded without teardown
	h.tracker.idle.Stop()
	h.advance(time.Second)

	h.tracker = h.newTracker("cust_1")
	h.start("B")

	st := h.tracker.State()
	assert.True(t, st.Resumed)
	assert.Equal(t, first.SessionID, st.Session.SessionID)
	assert.Equal(t, first.StartedAt, st.Session.StartedAt)

	// resuming sends a snapshot straight away
	snap := h.sender.last(t)
	assert.Equal(t, first.SessionID, snap.SessionID)
	assert.InDelta(t, 4.0, seconds(t, snap, "A"), 1e-9)
	assert.InDelta(t, 2.0, seconds(t, snap, "B"), 1e-9)
	assert.Equal(t, []model.EventType{
		model.EventSessionStart,
		model.EventSlideChange,
		model.EventTabHidden,
	}, snap.EventTypes())

	h.advance(3 * time.Second)
	final := h.terminate()
	assert.InDelta(t, 5.0, seconds(t, final, "B"), 1e-9)
	assert.InDelta(t, 10.0, final.DurationSeconds, 1e-9)
}

func TestTracker_ResumeIgnoresForeignDwell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.SaveIdentity(ctx, "cust_1", persistence.Identity{SessionID: "sess-live", StartedAt: epoch.UnixMilli()}))
	require.NoError(t, h.store.SaveDwellTimes(ctx, "cust_1", persistence.DwellTimes{
		SessionID: "sess-old",
		Slides:    []model.SlideDwellRecord{{SlideID: "X", Seconds: 99}},
	}))

	h.start("A")
	snap := h.tracker.Snapshot()
	assert.Equal(t, "sess-live", snap.SessionID)
	_, ok := snap.Slide("X")
	assert.False(t, ok)
}

func TestTracker_NewSessionAfterTermination(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	first := h.tracker.State().Session.SessionID
	h.terminate()

	h.tracker = h.newTracker("cust_1")
	h.start("A")
	assert.False(t, h.tracker.State().Resumed)
	assert.NotEqual(t, first, h.tracker.State().Session.SessionID)
	h.terminate()

	history, err := h.store.History(context.Background(), "cust_1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTracker_PersistenceFailureDegrades(t *testing.T) {
	h := newHarness(t)
	h.identity.FailWrites(errors.New("quota exceeded"))
	h.history.FailWrites(errors.New("quota exceeded"))

	h.start("A")
	h.advance(5 * time.Second)
	h.handle(SlideChanged{SlideID: "B"})
	h.advance(DefaultIdleTimeout)
	h.handle(Activity{Kind: ActivityClick})
	h.advance(time.Second)
	final := h.terminate()

	assert.InDelta(t, 5.0, seconds(t, final, "A"), 1e-9)
	assert.InDelta(t, 1.0, seconds(t, final, "B"), 1e-9)
	assert.GreaterOrEqual(t, len(h.sender.all()), 4)
}

func TestTracker_ClockBackwards(t *testing.T) {
	h := newHarness(t)
	h.start("A")

	h.advance(10 * time.Second)
	h.clock.Set(epoch.Add(-time.Minute))
	h.handle(SlideChanged{SlideID: "B"})
	h.advance(2 * time.Second)
	final := h.terminate()

	for _, r := range final.Slides {
		assert.GreaterOrEqual(t, r.Seconds, 0.0)
	}
	assert.GreaterOrEqual(t, final.DurationSeconds, 0.0)
	for i := 1; i < len(final.EngagementEvents); i++ {
		assert.GreaterOrEqual(t, final.EngagementEvents[i].Timestamp, final.EngagementEvents[i-1].Timestamp)
	}
}

func TestTracker_DwellConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	slides := []string{"s1", "s2", "s3"}

	h := newHarness(t)
	h.start("s1")
	prev := map[string]float64{}
	hidden := false

	for i := 0; i < 500; i++ {
		switch rng.Intn(5) {
		case 0:
			h.handle(Activity{Kind: ActivityClick})
		case 1:
			h.handle(SlideChanged{SlideID: slides[rng.Intn(len(slides))]})
		case 2:
			hidden = !hidden
			h.handle(VisibilityChanged{Hidden: hidden})
		default:
			h.advance(time.Duration(rng.Intn(40_000)) * time.Millisecond)
		}

		snap := h.tracker.Snapshot()
		elapsed := float64(model.Millis(h.clock.Now())-snap.SessionStart) / 1000
		assert.LessOrEqual(t, snap.TotalDwellSeconds(), elapsed+1e-6, "step %d", i)
		for _, r := range snap.Slides {
			assert.GreaterOrEqual(t, r.Seconds, prev[r.SlideID], "step %d slide %s shrank", i, r.SlideID)
			prev[r.SlideID] = r.Seconds
		}
	}

	final := h.terminate()
	assert.LessOrEqual(t, final.TotalDwellSeconds(), final.DurationSeconds+1e-6)

	// user_idle and activity_resumed strictly alternate
	idle := false
	for _, e := range final.EngagementEvents {
		switch e.Type {
		case model.EventUserIdle:
			assert.False(t, idle, "user_idle while already idle")
			idle = true
		case model.EventActivityResumed:
			assert.True(t, idle, "activity_resumed while active")
			idle = false
		case model.EventTabHidden:
			idle = true
		case model.EventTabVisible:
			idle = false
		}
	}
}

func TestTracker_ReloadBeforeFirstSnapshotKeepsSessionStart(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	first := h.tracker.State().Session.SessionID
	h.advance(5 * time.Second)

	// reload before any transition has sent a snapshot
	h.tracker.idle.Stop()
	h.tracker = h.newTracker("cust_1")
	h.start("A")
	require.True(t, h.tracker.State().Resumed)
	assert.Equal(t, first, h.tracker.State().Session.SessionID)

	h.advance(time.Second)
	final := h.terminate()

	types := final.EventTypes()
	require.NotEmpty(t, types)
	assert.Equal(t, model.EventSessionStart, types[0])
	assert.Equal(t, model.EventSessionEnd, types[len(types)-1])
	assert.Equal(t, epoch.UnixMilli(), final.EngagementEvents[0].Timestamp)
}

func TestTracker_IdentityOutlivesTabTTLWhileActive(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	first := h.tracker.State().Session.SessionID

	// each slide change rewrites the identity; the harness TTL is one hour
	slides := []string{"B", "C", "D"}
	for _, slide := range slides {
		h.clock.Set(h.clock.Now().Add(40 * time.Minute))
		h.handle(SlideChanged{SlideID: slide})
	}

	h.tracker.idle.Stop()
	h.tracker = h.newTracker("cust_1")
	h.start("D")

	assert.True(t, h.tracker.State().Resumed)
	assert.Equal(t, first, h.tracker.State().Session.SessionID)
}

func TestTracker_ResumeRefreshesIdentity(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	first := h.tracker.State().Session.SessionID

	for i := 0; i < 2; i++ {
		// reload 50 minutes later, twice; the second would miss a TTL counted from start
		h.tracker.idle.Stop()
		h.clock.Set(h.clock.Now().Add(50 * time.Minute))
		h.tracker = h.newTracker("cust_1")
		h.start("A")

		require.True(t, h.tracker.State().Resumed, "reload %d", i+1)
		assert.Equal(t, first, h.tracker.State().Session.SessionID)
	}
}

func TestTracker_IdentityClearedAfterTermination(t *testing.T) {
	h := newHarness(t)
	h.start("A")
	h.handle(SlideChanged{SlideID: "B"})
	h.terminate()

	_, err := h.store.LoadIdentity(context.Background(), "cust_1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
