// Package memstore keeps duel records and ledger accounts in process memory.
// It backs single-process deployments and the coordinator tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"duel-arena/internal/duel"
)

var errKeyReused = errors.New("idempotency key reused for a different movement")

type posting struct {
	from   string
	to     string
	amount int64
}

type Entry struct {
	Account string
	Amount  int64
	Key     string
	At      time.Time
}

type Store struct {
	mu       sync.Mutex
	duels    map[string]*duel.Duel
	balances map[string]int64
	postings map[string]posting
	entries  []Entry
}

func New() *Store {
	return &Store{
		duels:    map[string]*duel.Duel{},
		balances: map[string]int64{},
		postings: map[string]posting{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateDuel(_ context.Context, d *duel.Duel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.duels[d.ID]; ok {
		return fmt.Errorf("duel %s already exists", d.ID)
	}
	s.duels[d.ID] = d.Clone()
	return nil
}

func (s *Store) GetDuel(_ context.Context, id string) (*duel.Duel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.duels[id]
	if !ok {
		return nil, duel.ErrNotFound
	}
	return d.Clone(), nil
}

func (s *Store) UpdateDuel(_ context.Context, d *duel.Duel, expect duel.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.duels[d.ID]
	if !ok {
		return duel.ErrNotFound
	}
	if cur.Status != expect {
		return fmt.Errorf("%w: stored status %s, expected %s", duel.ErrStateTransition, cur.Status, expect)
	}
	next := d.Clone()
	next.UpdatedAt = time.Now()
	s.duels[d.ID] = next
	d.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *Store) ListOpenDuels(context.Context) ([]*duel.Duel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*duel.Duel, 0)
	for _, d := range s.duels {
		if !d.Status.IsTerminal() {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) EnsureAccount(_ context.Context, account string, initial int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[account]; !ok {
		s.balances[account] = initial
	}
	return nil
}

func (s *Store) Balance(_ context.Context, account string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account], nil
}

func (s *Store) Debit(_ context.Context, account string, amount int64, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyLocked(posting{from: account, amount: amount}, key); err != nil {
		return 0, err
	}
	return s.balances[account], nil
}

func (s *Store) Credit(_ context.Context, account string, amount int64, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyLocked(posting{to: account, amount: amount}, key); err != nil {
		return 0, err
	}
	return s.balances[account], nil
}

func (s *Store) Transfer(_ context.Context, from, to string, amount int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(posting{from: from, to: to, amount: amount}, key)
}

// Entries returns the ledger entries written so far, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Store) applyLocked(p posting, key string) error {
	if p.amount < 0 {
		return duel.Validationf("amount must be positive")
	}
	if key == "" {
		return duel.Validationf("idempotency key required")
	}
	if prev, ok := s.postings[key]; ok {
		if prev != p {
			return fmt.Errorf("%s: %w", key, errKeyReused)
		}
		return nil
	}
	if p.from != "" && s.balances[p.from] < p.amount {
		return fmt.Errorf("%w: %s has %d, needs %d", duel.ErrInsufficientFunds, p.from, s.balances[p.from], p.amount)
	}
	now := time.Now()
	if p.from != "" {
		s.balances[p.from] -= p.amount
		s.entries = append(s.entries, Entry{Account: p.from, Amount: -p.amount, Key: key, At: now})
	}
	if p.to != "" {
		s.balances[p.to] += p.amount
		s.entries = append(s.entries, Entry{Account: p.to, Amount: p.amount, Key: key, At: now})
	}
	s.postings[key] = p
	return nil
}
