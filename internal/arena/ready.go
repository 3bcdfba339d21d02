package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/duel"
	"duel-arena/internal/timer"

	"github.com/rs/zerolog/log"
)

// MarkReady sets playerID's ready flag and reports whether this call saw both
// parties ready. Exactly one call per duel returns true; that call starts the
// match.
func (c *Coordinator) MarkReady(ctx context.Context, duelID, playerID string) (bool, error) {
	var bothReady bool
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		bothReady = false
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if !d.IsParty(playerID) {
			return duel.Validationf("%q is not a party to duel %s", playerID, d.ID)
		}
		if d.Status == duel.StatusInProgress {
			return nil
		}
		if d.Status != duel.StatusReadyCheck {
			return duel.StatusError("ready", d.Status)
		}
		st, err := c.loadStateLocked(ctx, d)
		if err != nil {
			return err
		}
		seat := st.Seat(playerID)
		if st.Participants[seat].Ready {
			return nil
		}

		next := st.Clone()
		next.Participants[seat].Ready = true
		next.UpdatedAt = c.now()
		if !next.BothReady() {
			if err := c.states.CompareAndSwap(ctx, next, st.Version); err != nil {
				return err
			}
			c.publishState(d, next)
			return nil
		}
		if err := c.startMatchLocked(ctx, d, st, next); err != nil {
			return err
		}
		bothReady = true
		return nil
	})
	return bothReady, err
}

// startMatchLocked deals the first round and schedules its turn timer before
// the record moves to IN_PROGRESS.
func (c *Coordinator) startMatchLocked(ctx context.Context, d *duel.Duel, prev, next *duel.ActiveState) error {
	if err := c.dealRound(next, 1); err != nil {
		return err
	}
	if turnPaused(next) {
		next.TurnDeadline = nil
	}
	if err := c.states.CompareAndSwap(ctx, next, prev.Version); err != nil {
		return err
	}
	if next.TurnDeadline != nil {
		c.scheduleTurnTimeout(d.ID, 1, *next.TurnDeadline)
	}

	started := d.Clone()
	if err := started.Transition(duel.StatusInProgress); err != nil {
		return err
	}
	now := c.now()
	started.StartedAt = &now
	if err := c.records.UpdateDuel(ctx, started, duel.StatusReadyCheck); err != nil {
		c.cancelDeadline(d.ID, timer.TagTurnTimeout, "")
		if rerr := c.states.Set(ctx, prev); rerr != nil {
			log.Warn().Err(rerr).Str("duel_id", d.ID).Msg("revert active state failed")
		}
		return fmt.Errorf("start duel: %w", err)
	}
	c.cancelDeadline(d.ID, timer.TagReadyTimeout, "")
	payload := map[string]any{"duel_id": d.ID, "round": next.Round}
	ev := log.Info().Str("duel_id", d.ID)
	if next.TurnDeadline != nil {
		payload["turn_deadline"] = next.TurnDeadline.UnixMilli()
		ev = ev.Time("turn_deadline", *next.TurnDeadline)
	}
	ev.Msg("duel started")
	c.publish(d.ID, EventDuelStarted, "", payload)
	c.publishState(started, next)
	return nil
}

func (c *Coordinator) scheduleReadyTimeout(duelID string, at time.Time) {
	c.schedule(duelID, timer.TagReadyTimeout, "", at, func(ctx context.Context) {
		run := func(ctx context.Context) error { return c.onReadyTimeout(ctx, duelID) }
		if err := run(ctx); err != nil {
			c.retryLater(duelID, "ready timeout", err, run)
		}
	})
}

// onReadyTimeout cancels a ready-check nobody completed in time.
func (c *Coordinator) onReadyTimeout(ctx context.Context, duelID string) error {
	return c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if d.Status != duel.StatusReadyCheck {
			return nil
		}
		st, err := c.states.Get(ctx, duelID)
		if err == nil && (st.BothReady() || c.now().Before(st.ReadyDeadline)) {
			return nil
		}
		if err != nil && !errors.Is(err, activestate.ErrNotFound) {
			return err
		}
		_, err = c.cancelLocked(ctx, d, "ready_timeout")
		return err
	})
}

// loadStateLocked returns the active state of a live duel. A live duel whose
// state is gone cannot continue and is closed with stakes returned.
func (c *Coordinator) loadStateLocked(ctx context.Context, d *duel.Duel) (*duel.ActiveState, error) {
	st, err := c.states.Get(ctx, d.ID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, activestate.ErrNotFound) {
		return nil, err
	}
	log.Warn().Str("duel_id", d.ID).Str("status", string(d.Status)).Msg("active state lost")
	if d.Status == duel.StatusInProgress {
		_, err = c.settleLocked(ctx, d.ID, duel.Cancelled("state_lost"))
	} else {
		_, err = c.cancelLocked(ctx, d, "state_lost")
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: duel %s lost its active state", duel.ErrStateTransition, d.ID)
}
