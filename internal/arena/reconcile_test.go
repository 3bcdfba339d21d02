package arena

import (
	"context"
	"testing"
	"time"

	"duel-arena/internal/duel"
	"duel-arena/internal/timer"
)

func TestReconcileAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "carol", 100)
	h.fund(t, "dave", 100)

	stale := h.challenge(t, 20)
	h.clock.Advance(h.cfg.ChallengeTTL / 2)
	fresh, err := h.c.CreateChallenge(ctx, ChallengeRequest{ChallengerID: "carol", OpponentID: "dave", Kind: duel.KindWagered, Wager: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.clock.Advance(h.cfg.ChallengeTTL/2 + time.Second)

	restarted := h.restart(t)
	report, err := restarted.c.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Open != 2 || report.Closed != 1 || report.Rescheduled != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if restarted.record(t, stale.ID).Status != duel.StatusExpired || h.balance(t, "alice") != 100 {
		t.Fatal("overdue challenge not expired and refunded")
	}
	if restarted.record(t, fresh.ID).Status != duel.StatusPending {
		t.Fatal("fresh challenge closed")
	}
	if restarted.pendingTags(fresh.ID)[timer.TagChallengeExpiry] != 1 {
		t.Fatal("challenge expiry not rescheduled")
	}
}

func TestReconcileReschedulesLiveDuel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.started(t, 50)
	_ = h.c.Connect(ctx, d.ID, "alice")

	restarted := h.restart(t)
	if _, err := restarted.c.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	tags := restarted.pendingTags(d.ID)
	if tags[timer.TagTurnTimeout] != 0 {
		t.Fatalf("turn timer running while alice is in grace: %v", tags)
	}
	if tags[timer.TagDisconnectForfeit] != 1 {
		t.Fatalf("expected a grace period for the previously connected player: %v", tags)
	}
	st := restarted.state(t, d.ID)
	if st.Participants[0].Connected || st.Participants[0].DisconnectedAt == nil {
		t.Fatal("stale connection not marked disconnected")
	}
	if st.TurnDeadline != nil {
		t.Fatal("turn deadline kept while alice is in grace")
	}

	if err := restarted.c.Connect(ctx, d.ID, "alice"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	tags = restarted.pendingTags(d.ID)
	if tags[timer.TagDisconnectForfeit] != 0 {
		t.Fatal("reconnect did not cancel the rescheduled forfeit")
	}
	if tags[timer.TagTurnTimeout] != 1 {
		t.Fatalf("turn timer not resumed after reconnect: %v", tags)
	}
}

func TestReconcileReschedulesTurnTimerWithoutSockets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.started(t, 50)
	deadline := *h.state(t, d.ID).TurnDeadline

	restarted := h.restart(t)
	if _, err := restarted.c.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	tags := restarted.pendingTags(d.ID)
	if tags[timer.TagTurnTimeout] != 1 || tags[timer.TagDisconnectForfeit] != 0 {
		t.Fatalf("unexpected timers: %v", tags)
	}
	if st := restarted.state(t, d.ID); st.TurnDeadline == nil || !st.TurnDeadline.Equal(deadline) {
		t.Fatalf("turn deadline moved: %v", st.TurnDeadline)
	}
}

func TestReconcileClosesDuelsWithLostState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.started(t, 100)
	if err := h.states.Delete(ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	restarted := h.restart(t)
	report, err := restarted.c.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Closed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	final := restarted.record(t, d.ID)
	if final.Status != duel.StatusCancelled || final.Outcome.Reason != "state_lost" {
		t.Fatalf("unexpected duel: %+v", final)
	}
	if h.balance(t, "alice") != 100 || h.balance(t, "bob") != 100 || h.escrow(t, d.ID) != 0 {
		t.Fatal("lost duel not refunded")
	}
}

func TestReconcileFinishesPendingSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.started(t, 100)

	rec := h.record(t, d.ID)
	pending := duel.Winner("alice")
	rec.PendingOutcome = &pending
	if err := h.mem.UpdateDuel(ctx, rec, duel.StatusInProgress); err != nil {
		t.Fatalf("record pending outcome: %v", err)
	}

	restarted := h.restart(t)
	if _, err := restarted.c.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	final := restarted.record(t, d.ID)
	if final.Status != duel.StatusCompleted || !final.Outcome.Same(pending) {
		t.Fatalf("unexpected duel: %+v", final)
	}
	if h.balance(t, "alice") != 200 || h.escrow(t, d.ID) != 0 {
		t.Fatal("pending settlement not paid")
	}
}

func TestReconcileRefundsInterruptedAcceptance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.challenge(t, 40)

	// stake matched and status moved, but the process died before READY_CHECK
	if err := h.c.ledger.LockStake(ctx, d.ID, "bob", 40); err != nil {
		t.Fatalf("lock stake: %v", err)
	}
	rec := h.record(t, d.ID)
	rec.Status = duel.StatusAccepted
	if err := h.mem.UpdateDuel(ctx, rec, duel.StatusPending); err != nil {
		t.Fatalf("update: %v", err)
	}

	restarted := h.restart(t)
	if _, err := restarted.c.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if restarted.record(t, d.ID).Status != duel.StatusCancelled {
		t.Fatal("interrupted acceptance not cancelled")
	}
	if h.balance(t, "alice") != 100 || h.balance(t, "bob") != 100 || h.escrow(t, d.ID) != 0 {
		t.Fatalf("alice=%d bob=%d escrow=%d", h.balance(t, "alice"), h.balance(t, "bob"), h.escrow(t, d.ID))
	}
}
