package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gosight/slidetrack/internal/model"
)

// Identity is the persisted (sessionId, startedAt) pair that lets a reload
// resume a visit
type Identity struct {
	SessionID string
	StartedAt int64
}

// DwellTimes is the latest per-slide dwell mapping written by a session
type DwellTimes struct {
	SessionID string                   `json:"sessionId"`
	Slides    []model.SlideDwellRecord `json:"slides"`
}

// EventLog is the latest event log written by a session
type EventLog struct {
	SessionID string                  `json:"sessionId"`
	Events    []model.EngagementEvent `json:"events"`
}

// Store lays the tracker's conceptual keys out over two regions: a
// tab-scoped identity region and a customer-scoped history region.
type Store struct {
	identity KV
	history  KV
	tabID    string
	tabTTL   time.Duration
	closers  []func() error
}

// NewStore creates a Store. tabTTL bounds how long an identity outlives its
// last write when the backend cannot observe the tab closing.
func NewStore(identity, history KV, tabID string, tabTTL time.Duration) *Store {
	return &Store{
		identity: identity,
		history:  history,
		tabID:    tabID,
		tabTTL:   tabTTL,
	}
}

// NewMemoryStore creates a Store with both regions in memory
func NewMemoryStore(tabID string) *Store {
	return NewStore(NewMemoryKV(nil), NewMemoryKV(nil), tabID, 0)
}

func (s *Store) sessionIDKey(customerID string) string {
	return fmt.Sprintf("tab:%s:session-id:%s", s.tabID, customerID)
}

func (s *Store) sessionStartKey(customerID string) string {
	return fmt.Sprintf("tab:%s:session-start:%s", s.tabID, customerID)
}

func dwellKey(customerID string) string {
	return "slide-dwell-times:" + customerID
}

func historyKey(customerID string) string {
	return "session-history:" + customerID
}

func eventsKey(customerID string) string {
	return "engagement-events:" + customerID
}

// LoadIdentity returns the open session identity for customerID in this tab
func (s *Store) LoadIdentity(ctx context.Context, customerID string) (Identity, error) {
	id, err := s.identity.Get(ctx, s.sessionIDKey(customerID))
	if err != nil {
		return Identity{}, err
	}
	start, err := s.identity.Get(ctx, s.sessionStartKey(customerID))
	if err != nil {
		return Identity{}, err
	}

	startedAt, err := strconv.ParseInt(string(start), 10, 64)
	if err != nil || len(id) == 0 {
		return Identity{}, ErrNotFound
	}

	return Identity{
		SessionID: string(id),
		StartedAt: startedAt,
	}, nil
}

// SaveIdentity writes the session identity. Each write restarts the tab TTL.
func (s *Store) SaveIdentity(ctx context.Context, customerID string, id Identity) error {
	if err := s.identity.Set(ctx, s.sessionIDKey(customerID), []byte(id.SessionID), s.tabTTL); err != nil {
		return err
	}
	return s.identity.Set(ctx, s.sessionStartKey(customerID), []byte(strconv.FormatInt(id.StartedAt, 10)), s.tabTTL)
}

// ClearIdentity removes the identity so the next visit starts fresh
func (s *Store) ClearIdentity(ctx context.Context, customerID string) error {
	return errors.Join(
		s.identity.Delete(ctx, s.sessionIDKey(customerID)),
		s.identity.Delete(ctx, s.sessionStartKey(customerID)),
	)
}

// SaveDwellTimes overwrites the customer's latest dwell mapping
func (s *Store) SaveDwellTimes(ctx context.Context, customerID string, dwell DwellTimes) error {
	return s.putJSON(ctx, dwellKey(customerID), dwell)
}

// LoadDwellTimes returns the customer's latest dwell mapping
func (s *Store) LoadDwellTimes(ctx context.Context, customerID string) (DwellTimes, error) {
	var dwell DwellTimes
	err := s.getJSON(ctx, dwellKey(customerID), &dwell)
	return dwell, err
}

// SaveEvents overwrites the customer's latest event log
func (s *Store) SaveEvents(ctx context.Context, customerID string, log EventLog) error {
	return s.putJSON(ctx, eventsKey(customerID), log)
}

// LoadEvents returns the customer's latest event log
func (s *Store) LoadEvents(ctx context.Context, customerID string) (EventLog, error) {
	var log EventLog
	err := s.getJSON(ctx, eventsKey(customerID), &log)
	return log, err
}

// AppendHistory appends a completed snapshot to the customer's history.
// The read-modify-write is not atomic: two tabs appending at once can lose
// one of the entries.
func (s *Store) AppendHistory(ctx context.Context, customerID string, snap model.Snapshot) error {
	history, err := s.History(ctx, customerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	history = append(history, snap)
	return s.putJSON(ctx, historyKey(customerID), history)
}

// History returns every completed snapshot recorded for the customer
func (s *Store) History(ctx context.Context, customerID string) ([]model.Snapshot, error) {
	var history []model.Snapshot
	if err := s.getJSON(ctx, historyKey(customerID), &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Close releases the backend connections opened for this store
func (s *Store) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func (s *Store) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.history.Set(ctx, key, data, 0)
}

func (s *Store) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.history.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
