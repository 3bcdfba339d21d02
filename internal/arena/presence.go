package arena

import (
	"context"
	"errors"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/duel"
	"duel-arena/internal/timer"

	"github.com/rs/zerolog/log"
)

// Connect marks playerID present and cancels a pending disconnect forfeit.
// Once nobody is left in a grace period a paused turn clock restarts with a
// full turn. Duels that have no active state yet accept the call as a no-op.
func (c *Coordinator) Connect(ctx context.Context, duelID, playerID string) error {
	return c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if !d.IsParty(playerID) {
			return duel.Validationf("%q is not a party to duel %s", playerID, d.ID)
		}
		if d.Status.IsTerminal() {
			return duel.StatusError("connect", d.Status)
		}
		if d.Status != duel.StatusReadyCheck && d.Status != duel.StatusInProgress {
			return nil
		}
		st, err := c.states.Get(ctx, duelID)
		if errors.Is(err, activestate.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c.cancelDeadline(d.ID, timer.TagDisconnectForfeit, playerID)
		seat := st.Seat(playerID)
		next := st.Clone()
		next.Participants[seat].Connected = true
		next.Participants[seat].DisconnectedAt = nil
		resume := d.Status == duel.StatusInProgress && next.TurnDeadline == nil && !turnPaused(next)
		if st.Participants[seat].Connected && st.Participants[seat].DisconnectedAt == nil && !resume {
			return nil
		}
		now := c.now()
		next.UpdatedAt = now
		if resume {
			deadline := now.Add(c.cfg.TurnTimeout)
			next.TurnDeadline = &deadline
		}
		if err := c.states.CompareAndSwap(ctx, next, st.Version); err != nil {
			return err
		}
		log.Info().Str("duel_id", d.ID).Str("player_id", playerID).Msg("participant connected")
		if resume {
			c.scheduleTurnTimeout(d.ID, next.Round, *next.TurnDeadline)
			log.Info().Str("duel_id", d.ID).Int("round", next.Round).Time("turn_deadline", *next.TurnDeadline).Msg("turn clock resumed")
		}
		c.publish(d.ID, EventPresence, "", map[string]any{"player_id": playerID, "connected": true})
		c.publishState(d, next)
		return nil
	})
}

// Disconnect records that playerID dropped and starts the forfeit grace
// period unless one is already running. A running match stops its turn
// clock until both parties are back.
func (c *Coordinator) Disconnect(ctx context.Context, duelID, playerID string) error {
	return c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if !d.IsParty(playerID) {
			return duel.Validationf("%q is not a party to duel %s", playerID, d.ID)
		}
		if d.Status != duel.StatusReadyCheck && d.Status != duel.StatusInProgress {
			return nil
		}
		st, err := c.states.Get(ctx, duelID)
		if errors.Is(err, activestate.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		seat := st.Seat(playerID)
		next := st.Clone()
		p := &next.Participants[seat]
		p.Connected = false
		if p.DisconnectedAt == nil {
			now := c.now()
			p.DisconnectedAt = &now
		}
		next.UpdatedAt = c.now()
		if d.Status == duel.StatusInProgress {
			next.TurnDeadline = nil
		}
		if err := c.states.CompareAndSwap(ctx, next, st.Version); err != nil {
			return err
		}
		if d.Status == duel.StatusInProgress && c.cancelDeadline(d.ID, timer.TagTurnTimeout, "") {
			log.Info().Str("duel_id", d.ID).Int("round", next.Round).Msg("turn clock paused")
		}
		if !c.pending(d.ID, timer.TagDisconnectForfeit, playerID) {
			c.scheduleDisconnectForfeit(d.ID, playerID, p.DisconnectedAt.Add(c.cfg.DisconnectGrace))
		}
		log.Info().
			Str("duel_id", d.ID).
			Str("player_id", playerID).
			Dur("grace", c.cfg.DisconnectGrace).
			Msg("participant disconnected")
		c.publish(d.ID, EventPresence, "", map[string]any{
			"player_id":   playerID,
			"connected":   false,
			"deadline_ts": p.DisconnectedAt.Add(c.cfg.DisconnectGrace).UnixMilli(),
		})
		c.publishState(d, next)
		return nil
	})
}

// turnPaused reports whether either participant is inside a disconnect grace
// period. The turn clock does not run while one is.
func turnPaused(st *duel.ActiveState) bool {
	for _, p := range st.Participants {
		if p.DisconnectedAt != nil {
			return true
		}
	}
	return false
}

// Forfeit is an explicit surrender. In a running match it settles as a
// forfeit; during the ready-check it cancels with stakes returned.
func (c *Coordinator) Forfeit(ctx context.Context, duelID, playerID string) (*duel.Duel, error) {
	var out *duel.Duel
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if !d.IsParty(playerID) {
			return duel.Validationf("%q is not a party to duel %s", playerID, d.ID)
		}
		switch d.Status {
		case duel.StatusInProgress:
			out, err = c.settleLocked(ctx, d.ID, duel.Forfeiter(playerID))
		case duel.StatusReadyCheck:
			out, err = c.cancelLocked(ctx, d, "surrendered_by_"+playerID)
		default:
			return duel.StatusError("forfeit", d.Status)
		}
		return err
	})
	return out, err
}

func (c *Coordinator) scheduleDisconnectForfeit(duelID, playerID string, at time.Time) {
	c.schedule(duelID, timer.TagDisconnectForfeit, playerID, at, func(ctx context.Context) {
		run := func(ctx context.Context) error { return c.onDisconnectDeadline(ctx, duelID, playerID) }
		if err := run(ctx); err != nil {
			c.retryLater(duelID, "disconnect forfeit", err, run)
		}
	})
}

// onDisconnectDeadline forfeits playerID if they are still gone once the
// grace period has run out. A reconnect in the meantime makes it a no-op.
func (c *Coordinator) onDisconnectDeadline(ctx context.Context, duelID, playerID string) error {
	return c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if d.Status != duel.StatusReadyCheck && d.Status != duel.StatusInProgress {
			return nil
		}
		st, err := c.states.Get(ctx, duelID)
		if errors.Is(err, activestate.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		seat := st.Seat(playerID)
		if seat < 0 {
			return nil
		}
		p := st.Participants[seat]
		if p.Connected || p.DisconnectedAt == nil {
			return nil
		}
		if c.now().Before(p.DisconnectedAt.Add(c.cfg.DisconnectGrace)) {
			return nil
		}
		log.Info().Str("duel_id", d.ID).Str("player_id", playerID).Str("status", string(d.Status)).Msg("disconnect grace expired")
		if d.Status == duel.StatusInProgress {
			_, err = c.settleLocked(ctx, d.ID, duel.Forfeiter(playerID))
			return err
		}
		_, err = c.cancelLocked(ctx, d, "disconnected_"+playerID)
		return err
	})
}
