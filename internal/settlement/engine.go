// Package settlement turns a duel outcome into ledger movements and a
// terminal session record, exactly once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/duel"
	"duel-arena/internal/ledger"
	"duel-arena/internal/lock"
	"duel-arena/internal/metrics"

	"github.com/rs/zerolog/log"
)

type TimerCanceller interface {
	CancelKey(key string) int
}

// Observer is told about every duel the engine drives to a terminal status.
type Observer interface {
	DuelSettled(ctx context.Context, d *duel.Duel)
}

type Engine struct {
	records  duel.Records
	ledger   *ledger.Ledger
	states   activestate.Store
	locker   lock.Locker
	lockOpts lock.Options
	timers   TimerCanceller
	observer Observer
	now      func() time.Time
}

func New(records duel.Records, led *ledger.Ledger, states activestate.Store, locker lock.Locker, lockOpts lock.Options, timers TimerCanceller) *Engine {
	return &Engine{
		records:  records,
		ledger:   led,
		states:   states,
		locker:   locker,
		lockOpts: lockOpts,
		timers:   timers,
		now:      time.Now,
	}
}

func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Settle acquires the duel lock and settles. Callers that already hold the
// lock use SettleLocked.
func (e *Engine) Settle(ctx context.Context, duelID string, outcome duel.Outcome) (*duel.Duel, error) {
	var out *duel.Duel
	err := lock.Do(ctx, e.locker, duel.LockKey(duelID), e.lockOpts, func(ctx context.Context) error {
		var err error
		out, err = e.SettleLocked(ctx, duelID, outcome)
		return err
	})
	return out, err
}

// SettleLocked records the outcome as pending, moves the escrow, then marks
// the record terminal. A repeat call with the same outcome returns the
// settled record; a different outcome is rejected once one is recorded.
func (e *Engine) SettleLocked(ctx context.Context, duelID string, outcome duel.Outcome) (*duel.Duel, error) {
	d, err := e.records.GetDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		if d.Outcome != nil && d.Outcome.Same(outcome) {
			return d, nil
		}
		return d, fmt.Errorf("%w: duel %s already ended as %s", duel.ErrStateTransition, d.ID, describe(d.Outcome))
	}
	if d.Status != duel.StatusInProgress {
		return d, duel.StatusError("settle", d.Status)
	}
	if err := outcome.Validate(d); err != nil {
		return d, err
	}
	if d.PendingOutcome != nil && !d.PendingOutcome.Same(outcome) {
		return d, fmt.Errorf("%w: duel %s is settling as %s", duel.ErrStateTransition, d.ID, d.PendingOutcome)
	}

	if d.PendingOutcome == nil {
		pending := outcome
		d.PendingOutcome = &pending
		if err := e.records.UpdateDuel(ctx, d, duel.StatusInProgress); err != nil {
			if errors.Is(err, duel.ErrStateTransition) {
				return d, err
			}
			metrics.Get().SettlementDeferred.Inc()
			return d, fmt.Errorf("%w: record pending outcome: %v", duel.ErrSettlementDeferred, err)
		}
	}

	if d.Wagered() {
		if err := e.transfer(ctx, d, *d.PendingOutcome); err != nil {
			metrics.Get().SettlementDeferred.Inc()
			log.Warn().Err(err).Str("duel_id", d.ID).Str("outcome", d.PendingOutcome.String()).Msg("settlement deferred")
			return d, fmt.Errorf("%w: %v", duel.ErrSettlementDeferred, err)
		}
	}

	settled := d.Clone()
	final := *settled.PendingOutcome
	if outcome.Reason != "" && final.Reason == "" {
		final.Reason = outcome.Reason
	}
	now := e.now()
	settled.Status = final.TerminalStatus()
	settled.Outcome = &final
	settled.PendingOutcome = nil
	settled.EndedAt = &now
	if st, err := e.states.Get(ctx, d.ID); err == nil {
		settled.Rounds = st.Round
	}
	if err := e.records.UpdateDuel(ctx, settled, duel.StatusInProgress); err != nil {
		if !d.Wagered() {
			metrics.Get().SettlementDeferred.Inc()
			return d, fmt.Errorf("%w: mark terminal: %v", duel.ErrSettlementDeferred, err)
		}
		metrics.Get().LedgerInconsistency.Inc()
		log.Error().Err(err).
			Str("duel_id", d.ID).
			Str("outcome", final.String()).
			Int64("wager", d.Wager).
			Msg("escrow released but duel record not marked terminal")
		return d, fmt.Errorf("%w: duel %s: %v", duel.ErrLedgerInconsistency, d.ID, err)
	}

	e.teardown(ctx, settled)
	metrics.Get().DuelsEnded.WithLabelValues(string(settled.Status)).Inc()
	log.Info().
		Str("duel_id", settled.ID).
		Str("status", string(settled.Status)).
		Str("outcome", final.String()).
		Int("rounds", settled.Rounds).
		Msg("duel settled")
	if e.observer != nil {
		e.observer.DuelSettled(ctx, settled)
	}
	return settled, nil
}

func (e *Engine) transfer(ctx context.Context, d *duel.Duel, outcome duel.Outcome) error {
	switch outcome.Kind {
	case duel.OutcomeWinner:
		return e.ledger.PayOut(ctx, d.ID, outcome.PlayerID, 2*d.Wager)
	case duel.OutcomeForfeit:
		return e.ledger.PayOut(ctx, d.ID, d.OpponentOf(outcome.PlayerID), 2*d.Wager)
	default:
		// Each leg has its own idempotency key. A retry after a partial
		// refund replays the finished leg as a no-op.
		for _, p := range d.Parties() {
			if err := e.ledger.RefundStake(ctx, d.ID, p, d.Wager); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e *Engine) teardown(ctx context.Context, d *duel.Duel) {
	if err := e.states.Delete(ctx, d.ID); err != nil {
		log.Warn().Err(err).Str("duel_id", d.ID).Msg("delete active state failed")
	}
	if e.timers != nil {
		e.timers.CancelKey(d.ID)
	}
}

func describe(o *duel.Outcome) string {
	if o == nil {
		return "unknown"
	}
	return o.String()
}
