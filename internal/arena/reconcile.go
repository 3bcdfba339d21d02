package arena

import (
	"context"
	"errors"

	"duel-arena/internal/activestate"
	"duel-arena/internal/duel"

	"github.com/rs/zerolog/log"
)

type ReconcileReport struct {
	Open        int
	Rescheduled int
	Closed      int
	Failed      int
}

// Reconcile walks every non-terminal duel after a restart. Deadlines that
// still lie ahead are scheduled again; work that was interrupted mid-way is
// finished or refunded.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	open, err := c.records.ListOpenDuels(ctx)
	if err != nil {
		return report, err
	}
	report.Open = len(open)
	for _, d := range open {
		closed, err := c.reconcileOne(ctx, d.ID)
		switch {
		case err != nil:
			report.Failed++
			log.Warn().Err(err).Str("duel_id", d.ID).Str("status", string(d.Status)).Msg("reconcile failed")
		case closed:
			report.Closed++
		default:
			report.Rescheduled++
		}
	}
	log.Info().
		Int("open", report.Open).
		Int("rescheduled", report.Rescheduled).
		Int("closed", report.Closed).
		Int("failed", report.Failed).
		Msg("reconcile finished")
	return report, nil
}

func (c *Coordinator) reconcileOne(ctx context.Context, duelID string) (bool, error) {
	var closed bool
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		now := c.now()
		switch d.Status {
		case duel.StatusPending:
			if !now.Before(d.ExpiresAt) {
				closed = true
				_, err = c.closePreMatchLocked(ctx, d, duel.StatusExpired, "expired")
				return err
			}
			c.scheduleExpiry(d)
			return nil

		case duel.StatusAccepted:
			closed = true
			_, err = c.cancelLocked(ctx, d, "interrupted")
			return err

		case duel.StatusReadyCheck:
			st, err := c.states.Get(ctx, duelID)
			if errors.Is(err, activestate.ErrNotFound) {
				closed = true
				_, err = c.cancelLocked(ctx, d, "state_lost")
				return err
			}
			if err != nil {
				return err
			}
			if !now.Before(st.ReadyDeadline) {
				closed = true
				_, err = c.cancelLocked(ctx, d, "ready_timeout")
				return err
			}
			c.scheduleReadyTimeout(d.ID, st.ReadyDeadline)
			_, err = c.rescheduleDisconnects(ctx, d, st)
			return err

		case duel.StatusInProgress:
			if d.PendingOutcome != nil {
				closed = true
				_, err = c.settleLocked(ctx, d.ID, *d.PendingOutcome)
				return err
			}
			st, err := c.states.Get(ctx, duelID)
			if errors.Is(err, activestate.ErrNotFound) {
				closed = true
				_, err = c.settleLocked(ctx, d.ID, duel.Cancelled("state_lost"))
				return err
			}
			if err != nil {
				return err
			}
			st, err = c.rescheduleDisconnects(ctx, d, st)
			if err != nil || turnPaused(st) {
				return err
			}
			if st.TurnDeadline == nil {
				// paused before the restart and nobody is in grace now
				next := st.Clone()
				deadline := now.Add(c.cfg.TurnTimeout)
				next.TurnDeadline = &deadline
				next.UpdatedAt = now
				if err := c.states.CompareAndSwap(ctx, next, st.Version); err != nil {
					return err
				}
				st = next
			}
			c.scheduleTurnTimeout(d.ID, st.Round, *st.TurnDeadline)
			return nil
		}
		return nil
	})
	return closed, err
}

// rescheduleDisconnects restarts disconnect grace periods and returns the
// stored state. Live connections do not survive a restart, so participants
// recorded as connected start a fresh grace period now. A running match
// keeps its turn clock stopped while anyone is in grace.
func (c *Coordinator) rescheduleDisconnects(ctx context.Context, d *duel.Duel, st *duel.ActiveState) (*duel.ActiveState, error) {
	next := st.Clone()
	changed := false
	now := c.now()
	for i := range next.Participants {
		p := &next.Participants[i]
		if p.Connected {
			p.Connected = false
			p.DisconnectedAt = &now
			changed = true
		}
	}
	if d.Status == duel.StatusInProgress && turnPaused(next) && next.TurnDeadline != nil {
		next.TurnDeadline = nil
		changed = true
	}
	if changed {
		next.UpdatedAt = now
		if err := c.states.CompareAndSwap(ctx, next, st.Version); err != nil {
			return st, err
		}
	}
	for _, p := range next.Participants {
		if p.DisconnectedAt == nil {
			continue
		}
		c.scheduleDisconnectForfeit(st.DuelID, p.PlayerID, p.DisconnectedAt.Add(c.cfg.DisconnectGrace))
	}
	return next, nil
}
