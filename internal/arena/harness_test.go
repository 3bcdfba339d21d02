package arena

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/config"
	"duel-arena/internal/duel"
	"duel-arena/internal/ledger"
	"duel-arena/internal/lock"
	"duel-arena/internal/memstore"
	"duel-arena/internal/rules"
	"duel-arena/internal/timer"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// testEvaluator ranks the favored hand above every other hand. With no
// favored hand every round is a push.
type testEvaluator struct {
	mu      sync.Mutex
	favored string
	err     error
}

func (e *testEvaluator) Evaluate(hand []string) (rules.HandRank, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return 0, e.err
	}
	if e.favored != "" && strings.Join(hand, ",") == e.favored {
		return 2, nil
	}
	return 1, nil
}

func (e *testEvaluator) favor(hand []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.favored = strings.Join(hand, ",")
}

func (e *testEvaluator) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

type harness struct {
	c       *Coordinator
	mem     *memstore.Store
	states  *activestate.MemoryStore
	timers  *timer.Scheduler
	clock   *fakeClock
	eval    *testEvaluator
	cfg     config.DuelConfig
	records *flakyRecords
	store   *flakyStates
}

type harnessOption func(*harness, *Deps)

// withFlakyRecords routes record writes through h.records.
func withFlakyRecords() harnessOption {
	return func(h *harness, d *Deps) {
		h.records = &flakyRecords{Store: h.mem}
		d.Records = h.records
	}
}

// withFlakyStates routes active state writes through h.store.
func withFlakyStates() harnessOption {
	return func(h *harness, d *Deps) {
		h.store = &flakyStates{MemoryStore: h.states}
		d.States = h.store
	}
}

func withConfig(fn func(*config.DuelConfig)) harnessOption {
	return func(_ *harness, d *Deps) { fn(&d.Config) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	mem := memstore.New()
	cfg := config.DefaultDuel()
	cfg.LockAttempts = 200
	cfg.LockBackoff = time.Millisecond
	h := &harness{
		mem:    mem,
		states: activestate.NewMemoryStore(time.Hour),
		timers: timer.NewScheduler(),
		clock:  &fakeClock{t: time.Now()},
		eval:   &testEvaluator{},
	}
	t.Cleanup(h.timers.Close)
	deps := Deps{
		Records:   mem,
		Ledger:    ledger.New(mem),
		States:    h.states,
		Locker:    lock.NewMemoryLocker(),
		Timers:    h.timers,
		Evaluator: h.eval,
		Config:    cfg,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.cfg = deps.Config
	h.c = NewCoordinator(deps)
	h.c.now = h.clock.Now
	return h
}

// restart builds a second coordinator over the same stores, as a new process
// would after a crash.
func (h *harness) restart(t *testing.T) *harness {
	t.Helper()
	next := &harness{
		mem:    h.mem,
		states: h.states,
		timers: timer.NewScheduler(),
		clock:  h.clock,
		eval:   h.eval,
		cfg:    h.cfg,
	}
	t.Cleanup(next.timers.Close)
	next.c = NewCoordinator(Deps{
		Records:   h.mem,
		Ledger:    ledger.New(h.mem),
		States:    h.states,
		Locker:    lock.NewMemoryLocker(),
		Timers:    next.timers,
		Evaluator: h.eval,
		Config:    h.cfg,
	})
	next.c.now = h.clock.Now
	return next
}

func (h *harness) fund(t *testing.T, player string, amount int64) {
	t.Helper()
	if err := h.mem.EnsureAccount(context.Background(), player, amount); err != nil {
		t.Fatalf("fund %s: %v", player, err)
	}
}

func (h *harness) balance(t *testing.T, account string) int64 {
	t.Helper()
	b, err := h.mem.Balance(context.Background(), account)
	if err != nil {
		t.Fatalf("balance %s: %v", account, err)
	}
	return b
}

func (h *harness) escrow(t *testing.T, duelID string) int64 {
	t.Helper()
	return h.balance(t, ledger.EscrowAccount(duelID))
}

func (h *harness) record(t *testing.T, id string) *duel.Duel {
	t.Helper()
	d, err := h.mem.GetDuel(context.Background(), id)
	if err != nil {
		t.Fatalf("get duel %s: %v", id, err)
	}
	return d
}

func (h *harness) state(t *testing.T, id string) *duel.ActiveState {
	t.Helper()
	st, err := h.states.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get state %s: %v", id, err)
	}
	return st
}

func (h *harness) pendingTags(duelID string) map[timer.Tag]int {
	out := map[timer.Tag]int{}
	for _, hd := range h.timers.PendingFor(duelID) {
		out[hd.Tag]++
	}
	return out
}

// challenge funds alice and bob with 100 each and has alice challenge bob.
func (h *harness) challenge(t *testing.T, wager int64) *duel.Duel {
	t.Helper()
	h.fund(t, "alice", 100)
	h.fund(t, "bob", 100)
	kind := duel.KindWagered
	if wager == 0 {
		kind = duel.KindFriendly
	}
	d, err := h.c.CreateChallenge(context.Background(), ChallengeRequest{
		ChallengerID: "alice",
		OpponentID:   "bob",
		Kind:         kind,
		Wager:        wager,
	})
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	return d
}

func (h *harness) accepted(t *testing.T, wager int64) *duel.Duel {
	t.Helper()
	d := h.challenge(t, wager)
	if _, err := h.c.AcceptChallenge(context.Background(), d.ID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return h.record(t, d.ID)
}

func (h *harness) started(t *testing.T, wager int64) *duel.Duel {
	t.Helper()
	ctx := context.Background()
	d := h.accepted(t, wager)
	if _, err := h.c.MarkReady(ctx, d.ID, "alice"); err != nil {
		t.Fatalf("ready alice: %v", err)
	}
	both, err := h.c.MarkReady(ctx, d.ID, "bob")
	if err != nil || !both {
		t.Fatalf("ready bob: both=%v err=%v", both, err)
	}
	return h.record(t, d.ID)
}

// playRound makes winner's current hand the stronger one ("" for a push)
// and has both parties stand.
func (h *harness) playRound(t *testing.T, duelID, winner string) {
	t.Helper()
	ctx := context.Background()
	st := h.state(t, duelID)
	h.eval.favor(nil)
	if winner != "" {
		h.eval.favor(st.Participants[st.Seat(winner)].Hand)
	}
	if _, err := h.c.SubmitAction(ctx, duelID, "alice", duel.Action{Kind: duel.ActionStand}); err != nil {
		t.Fatalf("alice stand: %v", err)
	}
	resolved, err := h.c.SubmitAction(ctx, duelID, "bob", duel.Action{Kind: duel.ActionStand})
	if err != nil || !resolved {
		t.Fatalf("bob stand: resolved=%v err=%v", resolved, err)
	}
}

var errStoreDown = errors.New("store unavailable")

// flakyRecords fails the next UpdateDuel that writes the armed status.
type flakyRecords struct {
	*memstore.Store
	mu     sync.Mutex
	failTo duel.Status
}

func (r *flakyRecords) failNextWrite(to duel.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failTo = to
}

func (r *flakyRecords) UpdateDuel(ctx context.Context, d *duel.Duel, expect duel.Status) error {
	r.mu.Lock()
	fail := r.failTo != "" && d.Status == r.failTo
	if fail {
		r.failTo = ""
	}
	r.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return r.Store.UpdateDuel(ctx, d, expect)
}

// flakyStates fails compare-and-swap writes while down is set.
type flakyStates struct {
	*activestate.MemoryStore
	mu   sync.Mutex
	down bool
}

func (s *flakyStates) setDown(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = v
}

func (s *flakyStates) CompareAndSwap(ctx context.Context, st *duel.ActiveState, expect int64) error {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return errStoreDown
	}
	return s.MemoryStore.CompareAndSwap(ctx, st, expect)
}

type failingCreate struct {
	*memstore.Store
}

func (f failingCreate) CreateDuel(context.Context, *duel.Duel) error {
	return errors.New("record store unavailable")
}

// requireEscrowMatchesCommitted checks escrow == wager * committed parties.
func (h *harness) requireEscrowMatchesCommitted(t *testing.T, duelID string) {
	t.Helper()
	d := h.record(t, duelID)
	want := d.Wager * int64(d.Committed())
	if got := h.escrow(t, duelID); got != want {
		t.Fatalf("duel %s in %s: escrow=%d, want %d", duelID, d.Status, got, want)
	}
}
