// Package arena coordinates duels from challenge to settlement: lifecycle,
// ready-check, rounds, presence and the startup reconciliation sweep.
package arena

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/config"
	"duel-arena/internal/duel"
	"duel-arena/internal/ledger"
	"duel-arena/internal/lock"
	"duel-arena/internal/rules"
	"duel-arena/internal/settlement"
	"duel-arena/internal/store"
	"duel-arena/internal/timer"
)

const callbackTimeout = 30 * time.Second

type Deps struct {
	Records   duel.Records
	Ledger    *ledger.Ledger
	States    activestate.Store
	Locker    lock.Locker
	Timers    *timer.Scheduler
	Evaluator rules.HandEvaluator
	Abilities rules.AbilityResolver
	Config    config.DuelConfig
}

type deadlineKey struct {
	duelID   string
	tag      timer.Tag
	playerID string
}

type Coordinator struct {
	records   duel.Records
	ledger    *ledger.Ledger
	states    activestate.Store
	locker    lock.Locker
	lockOpts  lock.Options
	timers    *timer.Scheduler
	settle    *settlement.Engine
	evaluator rules.HandEvaluator
	abilities rules.AbilityResolver
	cfg       config.DuelConfig

	now   func() time.Time
	newID func() string

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu        sync.Mutex
	deadlines map[deadlineKey]timer.Handle
	buffers   map[string]*EventBuffer
}

func NewCoordinator(deps Deps) *Coordinator {
	lockOpts := lock.Options{
		TTL:         deps.Config.LockTTL,
		MaxAttempts: deps.Config.LockAttempts,
		Backoff:     deps.Config.LockBackoff,
	}
	if deps.Evaluator == nil {
		deps.Evaluator = rules.PokerEvaluator{}
	}
	if deps.Abilities == nil {
		deps.Abilities = rules.DefaultCatalog()
	}
	c := &Coordinator{
		records:   deps.Records,
		ledger:    deps.Ledger,
		states:    deps.States,
		locker:    deps.Locker,
		lockOpts:  lockOpts,
		timers:    deps.Timers,
		evaluator: deps.Evaluator,
		abilities: deps.Abilities,
		cfg:       deps.Config,
		now:       time.Now,
		newID:     store.NewID,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		deadlines: map[deadlineKey]timer.Handle{},
		buffers:   map[string]*EventBuffer{},
	}
	c.settle = settlement.New(deps.Records, deps.Ledger, deps.States, deps.Locker, lockOpts, deps.Timers)
	c.settle.SetObserver(c)
	return c
}

func (c *Coordinator) Get(ctx context.Context, duelID string) (*duel.Duel, error) {
	return c.records.GetDuel(ctx, duelID)
}

func (c *Coordinator) Balance(ctx context.Context, playerID string) (int64, error) {
	return c.ledger.Balance(ctx, playerID)
}

// Settle drives an in-progress duel to outcome. It is safe to call again
// with the same outcome.
func (c *Coordinator) Settle(ctx context.Context, duelID string, outcome duel.Outcome) (*duel.Duel, error) {
	var out *duel.Duel
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		var err error
		out, err = c.settleLocked(ctx, duelID, outcome)
		return err
	})
	return out, err
}

func (c *Coordinator) withLock(ctx context.Context, duelID string, fn func(ctx context.Context) error) error {
	return lock.Do(ctx, c.locker, duel.LockKey(duelID), c.lockOpts, fn)
}

// schedule registers fn as the single deadline for (duelID, tag, playerID),
// replacing any earlier one.
func (c *Coordinator) schedule(duelID string, tag timer.Tag, playerID string, at time.Time, fn func(ctx context.Context)) {
	key := deadlineKey{duelID: duelID, tag: tag, playerID: playerID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.deadlines[key]; ok {
		c.timers.Cancel(old)
	}
	var h timer.Handle
	h = c.timers.Schedule(duelID, tag, at, func() {
		c.mu.Lock()
		if cur, ok := c.deadlines[key]; ok && cur.ID == h.ID {
			delete(c.deadlines, key)
		}
		c.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()
		fn(ctx)
	})
	if h.Valid() {
		c.deadlines[key] = h
	}
}

func (c *Coordinator) pending(duelID string, tag timer.Tag, playerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.deadlines[deadlineKey{duelID: duelID, tag: tag, playerID: playerID}]
	return ok
}

func (c *Coordinator) cancelDeadline(duelID string, tag timer.Tag, playerID string) bool {
	key := deadlineKey{duelID: duelID, tag: tag, playerID: playerID}
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.deadlines[key]
	if !ok {
		return false
	}
	delete(c.deadlines, key)
	return c.timers.Cancel(h)
}

func (c *Coordinator) clearDeadlines(duelID string) {
	c.mu.Lock()
	for key := range c.deadlines {
		if key.duelID == duelID {
			delete(c.deadlines, key)
		}
	}
	c.mu.Unlock()
	c.timers.CancelKey(duelID)
}

func (c *Coordinator) newDeck() []string {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return rules.NewDeck(c.rnd)
}
