package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/slidetrack/internal/clock"
	"github.com/gosight/slidetrack/internal/model"
)

// exerciseKV runs the behaviour every KV backend must share
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "k", []byte("v1"), 0))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// last write wins
	require.NoError(t, kv.Set(ctx, "k", []byte("v2"), 0))
	got, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	// deleting an absent key is not an error
	require.NoError(t, kv.Delete(ctx, "k"))
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV(nil))
}

func TestMemoryKV_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	kv := NewMemoryKV(c)

	require.NoError(t, kv.Set(ctx, "tab", []byte("x"), time.Minute))

	c.Advance(59 * time.Second)
	_, err := kv.Get(ctx, "tab")
	require.NoError(t, err)

	c.Advance(time.Second)
	_, err = kv.Get(ctx, "tab")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryKV_FailWrites(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(nil)
	quota := errors.New("quota exceeded")

	kv.FailWrites(quota)
	assert.ErrorIs(t, kv.Set(ctx, "k", []byte("v"), 0), quota)
	assert.Equal(t, 0, kv.Len())

	kv.FailWrites(nil)
	assert.NoError(t, kv.Set(ctx, "k", []byte("v"), 0))
}

func TestStore_IdentityLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("tab-1")

	_, err := s.LoadIdentity(ctx, "cust_1")
	require.ErrorIs(t, err, ErrNotFound)

	id := Identity{SessionID: "sess-1", StartedAt: 1_700_000_000_000}
	require.NoError(t, s.SaveIdentity(ctx, "cust_1", id))

	got, err := s.LoadIdentity(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	// identity is scoped per customer
	_, err = s.LoadIdentity(ctx, "cust_2")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.ClearIdentity(ctx, "cust_1"))
	_, err = s.LoadIdentity(ctx, "cust_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_IdentityIsTabScoped(t *testing.T) {
	ctx := context.Background()
	identity := NewMemoryKV(nil)
	history := NewMemoryKV(nil)

	tab1 := NewStore(identity, history, "tab-1", 0)
	tab2 := NewStore(identity, history, "tab-2", 0)

	require.NoError(t, tab1.SaveIdentity(ctx, "cust_1", Identity{SessionID: "a", StartedAt: 1}))

	_, err := tab2.LoadIdentity(ctx, "cust_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DwellAndEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("tab-1")

	dwell := DwellTimes{
		SessionID: "sess-1",
		Slides: []model.SlideDwellRecord{
			{SlideID: "s1", SlideTitle: "Intro", Seconds: 3.2},
		},
	}
	require.NoError(t, s.SaveDwellTimes(ctx, "cust_1", dwell))

	got, err := s.LoadDwellTimes(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, dwell, got)

	events := EventLog{
		SessionID: "sess-1",
		Events: []model.EngagementEvent{
			{ID: "e1", Type: model.EventSessionStart, Timestamp: 10, SlideID: "s1"},
		},
	}
	require.NoError(t, s.SaveEvents(ctx, "cust_1", events))

	gotEvents, err := s.LoadEvents(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, events, gotEvents)
}

func TestStore_AppendHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("tab-1")

	_, err := s.History(ctx, "cust_1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AppendHistory(ctx, "cust_1", model.Snapshot{SessionID: "a"}))
	require.NoError(t, s.AppendHistory(ctx, "cust_1", model.Snapshot{SessionID: "b"}))

	history, err := s.History(ctx, "cust_1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].SessionID)
	assert.Equal(t, "b", history[1].SessionID)
}

func TestStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	history := NewMemoryKV(nil)
	s := NewStore(NewMemoryKV(nil), history, "tab-1", 0)

	require.NoError(t, history.Set(ctx, "slide-dwell-times:cust_1", []byte("{not json"), 0))

	_, err := s.LoadDwellTimes(ctx, "cust_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
