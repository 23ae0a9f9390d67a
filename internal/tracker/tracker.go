// Package tracker implements the client-side engagement session tracker:
// session identity, idle detection, per-slide dwell accounting, the event
// log, and delivery of snapshots to the collector.
//
// A Tracker is not safe for concurrent use. All signals must be handed to
// Handle from one goroutine; with a real clock, run it through a Loop so idle
// timer fires are serialized with everything else.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/clock"
	"github.com/gosight/slidetrack/internal/model"
	"github.com/gosight/slidetrack/internal/persistence"
	"github.com/gosight/slidetrack/internal/syncclient"
)

var (
	ErrNoCustomer  = errors.New("tracker: customer id is required")
	ErrNotStarted  = errors.New("tracker: not started")
	ErrTerminated  = errors.New("tracker: session terminated")
	ErrAlreadyOpen = errors.New("tracker: session already open")
)

// State is the lifecycle state of a Tracker
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateIdle
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Open reports whether s is Active or Idle
func (s State) Open() bool {
	return s == StateActive || s == StateIdle
}

// Sender delivers a snapshot to the collector. It reports failure through the
// Outcome and must not panic.
type Sender interface {
	Send(ctx context.Context, snap model.Snapshot) syncclient.Outcome
}

// Persistence is the subset of the persistence store the tracker uses
type Persistence interface {
	LoadIdentity(ctx context.Context, customerID string) (persistence.Identity, error)
	SaveIdentity(ctx context.Context, customerID string, id persistence.Identity) error
	ClearIdentity(ctx context.Context, customerID string) error
	SaveDwellTimes(ctx context.Context, customerID string, dwell persistence.DwellTimes) error
	LoadDwellTimes(ctx context.Context, customerID string) (persistence.DwellTimes, error)
	SaveEvents(ctx context.Context, customerID string, log persistence.EventLog) error
	LoadEvents(ctx context.Context, customerID string) (persistence.EventLog, error)
	AppendHistory(ctx context.Context, customerID string, snap model.Snapshot) error
}

type Options struct {
	CustomerID       string
	IdleTimeout      time.Duration
	SendTimeout      time.Duration
	FinalSendTimeout time.Duration
	Device           model.DeviceInfo

	Clock  clock.Clock
	Logger *zerolog.Logger
	NewID  func() string
}

// TrackerState is the single mutable state object of a tracker. It changes
// only through Start, Handle and Terminate.
type TrackerState struct {
	Phase   State
	Session model.Session
	// Resumed is set when Start found a persisted identity for this tab
	Resumed bool
	// SentThisLoad is set once any snapshot has been handed to the Sender
	SentThisLoad bool
}

// Tracker is the session lifecycle manager. It owns the idle detector, the
// dwell accumulator and the event log, and decides when to snapshot.
type Tracker struct {
	opts   Options
	clock  clock.Clock
	log    zerolog.Logger
	store  Persistence
	sender Sender

	state  TrackerState
	idle   *IdleDetector
	dwell  *DwellAccumulator
	events *EventLog

	// dispatch routes timer fires back into the tracker. It is Handle unless
	// a Loop owns the tracker.
	dispatch func(Signal)
	inflight sync.WaitGroup
}

// New creates a tracker in the Uninitialized state
func New(opts Options, store Persistence, sender Sender) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.FinalSendTimeout <= 0 {
		opts.FinalSendTimeout = 2 * time.Second
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	t := &Tracker{
		opts:   opts,
		clock:  opts.Clock,
		log:    logger.With().Str("component", "tracker").Str("customer_id", opts.CustomerID).Logger(),
		store:  store,
		sender: sender,
		dwell:  NewDwellAccumulator(),
		events: NewEventLog(opts.NewID),
	}
	t.dispatch = t.Handle
	t.idle = NewIdleDetector(t.clock, opts.IdleTimeout, func(generation uint64) {
		t.dispatch(idleElapsed{generation: generation})
	})
	return t
}

// State returns a copy of the tracker state
func (t *Tracker) State() TrackerState {
	return t.state
}

// Start performs Uninitialized -> Active. It resumes the persisted session
// for this tab and customer if there is one, otherwise it mints a new one.
// initial is the slide on screen when tracking begins and may be empty.
func (t *Tracker) Start(ctx context.Context, initial SlideChanged) error {
	if t.opts.CustomerID == "" {
		t.log.Info().Msg("No customer id, tracking disabled")
		return ErrNoCustomer
	}
	if t.state.Phase != StateUninitialized {
		return ErrAlreadyOpen
	}

	now := t.clock.Now()
	customerID := t.opts.CustomerID

	id, err := t.store.LoadIdentity(ctx, customerID)
	switch {
	case err == nil:
		t.state.Session = model.Session{
			SessionID:  id.SessionID,
			CustomerID: customerID,
			StartedAt:  id.StartedAt,
		}
		t.state.Resumed = true
		t.restore(ctx, id.SessionID)
		t.saveIdentity(ctx)

	default:
		if !errors.Is(err, persistence.ErrNotFound) {
			t.log.Warn().Err(err).Msg("Failed to load session identity, starting a new session")
		}
		t.state.Session = model.Session{
			SessionID:  t.opts.NewID(),
			CustomerID: customerID,
			StartedAt:  now.UnixMilli(),
		}
		t.saveIdentity(ctx)
		t.events.Append(model.EventSessionStart, initial.SlideID, now, nil)
		t.persistEvents()
	}

	if initial.SlideID != "" {
		t.dwell.SlideChanged(initial.SlideID, initial.Title, now)
	}

	t.idle.Start()
	t.state.Phase = StateActive

	t.log.Info().
		Str("session_id", t.state.Session.SessionID).
		Bool("resumed", t.state.Resumed).
		Msg("Session started")

	// A reload mid-session has not sent anything yet this load
	if t.state.Resumed && !t.state.SentThisLoad {
		t.sendSnapshot(now)
	}
	return nil
}

func (t *Tracker) restore(ctx context.Context, sessionID string) {
	dwell, err := t.store.LoadDwellTimes(ctx, t.opts.CustomerID)
	switch {
	case err == nil && dwell.SessionID == sessionID:
		t.dwell.Restore(dwell.Slides)
	case err != nil && !errors.Is(err, persistence.ErrNotFound):
		t.log.Warn().Err(err).Msg("Failed to load dwell times")
	}

	events, err := t.store.LoadEvents(ctx, t.opts.CustomerID)
	switch {
	case err == nil && events.SessionID == sessionID:
		t.events.Restore(events.Events)
	case err != nil && !errors.Is(err, persistence.ErrNotFound):
		t.log.Warn().Err(err).Msg("Failed to load engagement events")
	}
}

// Handle dispatches one signal. Signals before Start or after termination
// are dropped.
func (t *Tracker) Handle(sig Signal) {
	if !t.state.Phase.Open() {
		t.log.Debug().Str("state", t.state.Phase.String()).Msgf("Dropping %T", sig)
		return
	}

	switch s := sig.(type) {
	case Activity:
		t.onActivity(s)
	case idleElapsed:
		t.onIdleElapsed(s)
	case VisibilityChanged:
		t.onVisibility(s)
	case SlideChanged:
		t.onSlideChanged(s)
	case Unload:
		if _, err := t.Terminate(context.Background(), s.Reason); err != nil {
			t.log.Debug().Err(err).Msg("Unload ignored")
		}
	}
}

func (t *Tracker) onActivity(s Activity) {
	tr, ok := t.idle.RecordActivity()
	if !ok {
		return
	}

	data := map[string]interface{}{"trigger": string(s.Kind)}
	for k, v := range s.Data {
		data[k] = v
	}
	t.applyTransition(tr, data)
}

func (t *Tracker) onIdleElapsed(s idleElapsed) {
	tr, ok := t.idle.Elapsed(s.generation)
	if !ok {
		return
	}
	t.applyTransition(tr, map[string]interface{}{
		"idleSince": tr.Since.UnixMilli(),
		"timeoutMs": t.idle.timeout.Milliseconds(),
	})
}

func (t *Tracker) onVisibility(s VisibilityChanged) {
	tr, ok := t.idle.SetHidden(s.Hidden)
	if !ok {
		return
	}
	t.applyTransition(tr, nil)
}

func (t *Tracker) applyTransition(tr Transition, data map[string]interface{}) {
	now := t.clock.Now()

	if t.dwell.IdleTransition(tr.Idle, tr.Since) {
		t.persistDwell()
	}
	t.events.Append(tr.Type, t.dwell.Current(), now, data)

	if tr.Idle {
		t.state.Phase = StateIdle
	} else {
		t.state.Phase = StateActive
	}

	t.log.Debug().
		Str("session_id", t.state.Session.SessionID).
		Str("transition", string(tr.Type)).
		Msg("Idle state changed")

	t.sendSnapshot(now)
}

func (t *Tracker) onSlideChanged(s SlideChanged) {
	prev := t.dwell.Current()
	if s.SlideID == "" || s.SlideID == prev {
		return
	}

	now := t.clock.Now()
	if t.dwell.SlideChanged(s.SlideID, s.Title, now) {
		t.persistDwell()
	}

	// The first slide pushed after start only positions the pointer
	if prev == "" {
		return
	}

	t.events.Append(model.EventSlideChange, s.SlideID, now, map[string]interface{}{
		"from": prev,
		"to":   s.SlideID,
	})
	t.sendSnapshot(now)
}

// Terminate performs Open -> Terminated: it flushes dwell time, sends the
// final snapshot synchronously, records session_end with the send outcome,
// appends the snapshot to history and clears the session identity.
func (t *Tracker) Terminate(ctx context.Context, reason string) (model.Snapshot, error) {
	switch t.state.Phase {
	case StateUninitialized:
		return model.Snapshot{}, ErrNotStarted
	case StateTerminated:
		return model.Snapshot{}, ErrTerminated
	}

	t.idle.Stop()
	now := t.clock.Now()
	t.dwell.Flush(now)
	t.persistDwell()

	ended := now.UnixMilli()
	t.state.Session.EndedAt = &ended
	t.state.Phase = StateTerminated

	sendCtx, cancel := context.WithTimeout(ctx, t.opts.FinalSendTimeout)
	outcome := t.sender.Send(sendCtx, t.snapshot(now))
	cancel()
	t.state.SentThisLoad = true

	if reason == "" {
		reason = "unload"
	}
	t.events.Append(model.EventSessionEnd, t.dwell.Current(), now, map[string]interface{}{
		"reason":      reason,
		"finalSendOk": outcome.Delivered,
	})

	final := t.snapshot(now)
	customerID := t.opts.CustomerID

	if err := t.store.AppendHistory(ctx, customerID, final); err != nil {
		t.log.Warn().Err(err).Msg("Failed to append session history")
	}
	t.persistEvents()
	if err := t.store.ClearIdentity(ctx, customerID); err != nil {
		t.log.Warn().Err(err).Msg("Failed to clear session identity")
	}

	t.log.Info().
		Str("session_id", final.SessionID).
		Float64("duration_seconds", final.DurationSeconds).
		Bool("final_send_ok", outcome.Delivered).
		Msg("Session ended")

	return final, nil
}

// Snapshot builds the current snapshot without sending it
func (t *Tracker) Snapshot() model.Snapshot {
	return t.snapshot(t.clock.Now())
}

func (t *Tracker) snapshot(now time.Time) model.Snapshot {
	s := t.state.Session

	end := now.UnixMilli()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	duration := float64(end-s.StartedAt) / 1000
	if duration < 0 {
		duration = 0
	}

	var sessionEnd *int64
	if s.EndedAt != nil {
		e := *s.EndedAt
		sessionEnd = &e
	}

	return model.Snapshot{
		SessionID:        s.SessionID,
		CustomerID:       s.CustomerID,
		SessionStart:     s.StartedAt,
		SessionEnd:       sessionEnd,
		DurationSeconds:  duration,
		Slides:           t.dwell.Records(),
		EngagementEvents: t.events.All(),
		DeviceInfo:       t.opts.Device,
	}
}

// sendSnapshot hands a snapshot to the Sender without waiting for delivery
func (t *Tracker) sendSnapshot(now time.Time) {
	snap := t.snapshot(now)
	t.state.SentThisLoad = true
	t.persistEvents()

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), t.opts.SendTimeout)
		defer cancel()

		outcome := t.sender.Send(ctx, snap)
		if !outcome.Delivered {
			t.log.Warn().
				Err(outcome.Err).
				Int("status", outcome.StatusCode).
				Str("session_id", snap.SessionID).
				Msg("Snapshot delivery failed")
			return
		}
		t.log.Debug().
			Str("session_id", snap.SessionID).
			Dur("latency", outcome.Latency).
			Msg("Snapshot delivered")
	}()
}

// WaitForDeliveries blocks until every fire-and-forget send has completed
func (t *Tracker) WaitForDeliveries() {
	t.inflight.Wait()
}

func (t *Tracker) persistDwell() {
	err := t.store.SaveDwellTimes(context.Background(), t.opts.CustomerID, persistence.DwellTimes{
		SessionID: t.state.Session.SessionID,
		Slides:    t.dwell.Records(),
	})
	if err != nil {
		t.log.Warn().Err(err).Msg("Failed to persist dwell times")
	}
}

func (t *Tracker) persistEvents() {
	err := t.store.SaveEvents(context.Background(), t.opts.CustomerID, persistence.EventLog{
		SessionID: t.state.Session.SessionID,
		Events:    t.events.All(),
	})
	if err != nil {
		t.log.Warn().Err(err).Msg("Failed to persist engagement events")
	}

	// Rewriting the identity restarts its tab TTL while the session is open
	if t.state.Phase.Open() {
		t.saveIdentity(context.Background())
	}
}

func (t *Tracker) saveIdentity(ctx context.Context) {
	err := t.store.SaveIdentity(ctx, t.opts.CustomerID, persistence.Identity{
		SessionID: t.state.Session.SessionID,
		StartedAt: t.state.Session.StartedAt,
	})
	if err != nil {
		t.log.Warn().Err(err).Msg("Failed to persist session identity")
	}
}
