package activestate

import (
	"context"
	"sync"
	"time"

	"duel-arena/internal/duel"
)

type memoryEntry struct {
	state   *duel.ActiveState
	expires time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, duelID string) (*duel.ActiveState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.liveLocked(duelID)
	if !ok {
		return nil, ErrNotFound
	}
	return e.state.Clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, st *duel.ActiveState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var version int64
	if e, ok := m.liveLocked(st.DuelID); ok {
		version = e.state.Version
	}
	m.writeLocked(st, version+1)
	return nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, st *duel.ActiveState, expect int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var version int64
	if e, ok := m.liveLocked(st.DuelID); ok {
		version = e.state.Version
	}
	if version != expect {
		return ErrVersionMismatch
	}
	m.writeLocked(st, version+1)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, duelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, duelID)
	return nil
}

func (m *MemoryStore) liveLocked(duelID string) (memoryEntry, bool) {
	e, ok := m.entries[duelID]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, duelID)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) writeLocked(st *duel.ActiveState, version int64) {
	st.Version = version
	m.entries[st.DuelID] = memoryEntry{state: st.Clone(), expires: m.now().Add(m.ttl)}
}
