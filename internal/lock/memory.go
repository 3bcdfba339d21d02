package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker is a single-process Locker.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryEntry
	now    func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if cur, ok := m.leases[key]; ok && now.Before(cur.expires) {
		return nil, ErrBusy
	}
	lease := &Lease{Key: key, Token: newToken(), TTL: ttl}
	m.leases[key] = memoryEntry{token: lease.Token, expires: now.Add(ttl)}
	return lease, nil
}

func (m *MemoryLocker) Renew(_ context.Context, lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cur, ok := m.leases[lease.Key]
	if !ok || cur.token != lease.Token || !now.Before(cur.expires) {
		return ErrLeaseLost
	}
	m.leases[lease.Key] = memoryEntry{token: lease.Token, expires: now.Add(lease.TTL)}
	return nil
}

func (m *MemoryLocker) Release(_ context.Context, lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leases[lease.Key]
	if !ok || cur.token != lease.Token {
		return ErrLeaseLost
	}
	delete(m.leases, lease.Key)
	return nil
}
