package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/gosight/slidetrack/internal/clock"
)

// MemoryKV keeps keys in process memory. Contents vanish with the process.
type MemoryKV struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry

	// failWrites simulates unavailable storage (quota exceeded, disabled)
	failWrites error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryKV creates an empty in-memory region
func NewMemoryKV(c clock.Clock) *MemoryKV {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryKV{
		clock:   c,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites != nil {
		return m.failWrites
	}

	e := memoryEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites != nil {
		return m.failWrites
	}
	delete(m.entries, key)
	return nil
}

// FailWrites makes every subsequent Set and Delete return err. Pass nil to
// restore normal behaviour.
func (m *MemoryKV) FailWrites(err error) {
	m.mu.Lock()
	m.failWrites = err
	m.mu.Unlock()
}

// Len returns the number of stored keys, expired ones included
func (m *MemoryKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
