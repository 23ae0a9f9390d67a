package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gosight/slidetrack/internal/clock"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/persistence"
	"github.com/gosight/slidetrack/internal/syncclient"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type recordingSender struct {
	mu    sync.Mutex
	snaps []model.Snapshot
	fail  bool
}

func (s *recordingSender) Send(_ context.Context, snap model.Snapshot) syncclient.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snaps = append(s.snaps, snap)
	if s.fail {
		return syncclient.Outcome{StatusCode: 503, Err: errors.New("collector unavailable")}
	}
	return syncclient.Outcome{Delivered: true, StatusCode: 202}
}

func (s *recordingSender) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *recordingSender) all() []model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Snapshot, len(s.snaps))
	copy(out, s.snaps)
	return out
}

func (s *recordingSender) last(t *testing.T) model.Snapshot {
	t.Helper()
	all := s.all()
	require.NotEmpty(t, all, "no snapshot sent")
	return all[len(all)-1]
}

type harness struct {
	t        *testing.T
	clock    *clock.Fake
	identity *persistence.MemoryKV
	history  *persistence.MemoryKV
	store    *persistence.Store
	sender   *recordingSender
	tracker  *Tracker
	ids      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	c := clock.NewFake(epoch)
	h := &harness{
		t:        t,
		clock:    c,
		identity: persistence.NewMemoryKV(c),
		history:  persistence.NewMemoryKV(c),
		sender:   &recordingSender{},
	}
	h.store = persistence.NewStore(h.identity, h.history, "tab-1", time.Hour)
	h.tracker = h.newTracker("cust_1")
	return h
}

// newTracker builds a fresh tracker over the same storage, as a page reload would
func (h *harness) newTracker(customerID string) *Tracker {
	logger := zerolog.Nop()
	return New(Options{
		CustomerID:  customerID,
		IdleTimeout: DefaultIdleTimeout,
		Device:      model.DeviceInfo{UserAgent: "test-agent", ScreenWidth: 1440, ScreenHeight: 900},
		Clock:       h.clock,
		Logger:      &logger,
		NewID: func() string {
			h.ids++
			return fmt.Sprintf("id-%d", h.ids)
		},
	}, h.store, h.sender)
}

func (h *harness) start(slideID string) {
	h.t.Helper()
	require.NoError(h.t, h.tracker.Start(context.Background(), SlideChanged{SlideID: slideID}))
	h.tracker.WaitForDeliveries()
}

func (h *harness) handle(sig Signal) {
	h.tracker.Handle(sig)
	h.tracker.WaitForDeliveries()
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.tracker.WaitForDeliveries()
}

func (h *harness) terminate() model.Snapshot {
	h.t.Helper()
	snap, err := h.tracker.Terminate(context.Background(), "unload")
	require.NoError(h.t, err)
	h.tracker.WaitForDeliveries()
	return snap
}

func seconds(t *testing.T, snap model.Snapshot, slideID string) float64 {
	t.Helper()
	r, ok := snap.Slide(slideID)
	require.True(t, ok, "slide %s missing from snapshot", slideID)
	return r.Seconds
}
