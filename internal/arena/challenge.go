package arena

import (
	"context"
	"errors"
	"fmt"

	"duel-arena/internal/activestate"
	"duel-arena/internal/duel"
	"duel-arena/internal/metrics"
	"duel-arena/internal/timer"

	"github.com/rs/zerolog/log"
)

type ChallengeRequest struct {
	ChallengerID string    `json:"challenger_id"`
	OpponentID   string    `json:"opponent_id"`
	Kind         duel.Kind `json:"kind"`
	Wager        int64     `json:"wager"`
}

func (r ChallengeRequest) validate() error {
	if r.ChallengerID == "" || r.OpponentID == "" {
		return duel.Validationf("challenger_id and opponent_id are required")
	}
	if r.ChallengerID == r.OpponentID {
		return duel.Validationf("cannot challenge yourself")
	}
	if !r.Kind.Valid() {
		return duel.Validationf("unknown duel kind %q", r.Kind)
	}
	if r.Wager < 0 {
		return duel.Validationf("wager must be >= 0")
	}
	if r.Kind == duel.KindFriendly && r.Wager != 0 {
		return duel.Validationf("friendly duels carry no wager")
	}
	if r.Kind == duel.KindWagered && r.Wager == 0 {
		return duel.Validationf("wagered duels need a positive wager")
	}
	return nil
}

// CreateChallenge escrows the challenger's stake and records a PENDING duel.
// A failed record write refunds the stake before the error is returned.
func (c *Coordinator) CreateChallenge(ctx context.Context, req ChallengeRequest) (*duel.Duel, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := c.now()
	d := &duel.Duel{
		ID:           c.newID(),
		ChallengerID: req.ChallengerID,
		OpponentID:   req.OpponentID,
		Kind:         req.Kind,
		Wager:        req.Wager,
		Status:       duel.StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.cfg.ChallengeTTL),
		UpdatedAt:    now,
	}
	if d.Wagered() {
		if err := c.ledger.LockStake(ctx, d.ID, d.ChallengerID, d.Wager); err != nil {
			return nil, err
		}
	}
	if err := c.records.CreateDuel(ctx, d); err != nil {
		if d.Wagered() {
			if rerr := c.ledger.RefundStake(ctx, d.ID, d.ChallengerID, d.Wager); rerr != nil {
				metrics.Get().LedgerInconsistency.Inc()
				log.Error().Err(rerr).Str("duel_id", d.ID).Str("player_id", d.ChallengerID).Int64("wager", d.Wager).
					Msg("stake escrowed for a duel that was never recorded")
				return nil, fmt.Errorf("%w: refund after failed create: %v", duel.ErrLedgerInconsistency, rerr)
			}
		}
		return nil, fmt.Errorf("create duel: %w", err)
	}
	c.scheduleExpiry(d)
	metrics.Get().DuelsCreated.WithLabelValues(string(d.Kind)).Inc()
	log.Info().
		Str("duel_id", d.ID).
		Str("challenger_id", d.ChallengerID).
		Str("opponent_id", d.OpponentID).
		Str("kind", string(d.Kind)).
		Int64("wager", d.Wager).
		Msg("challenge created")
	return d, nil
}

// AcceptChallenge matches the opponent's stake and opens the ready-check.
// The stake is handed back when the acceptance cannot be recorded; a duel
// left in ACCEPTED is cancelled off the timer.
func (c *Coordinator) AcceptChallenge(ctx context.Context, duelID, playerID string) (*duel.Duel, error) {
	var out *duel.Duel
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if d.Status != duel.StatusPending {
			return duel.StatusError("accept", d.Status)
		}
		if playerID != d.OpponentID {
			return duel.Validationf("only %s can accept this challenge", d.OpponentID)
		}
		if !c.now().Before(d.ExpiresAt) {
			if _, err := c.closePreMatchLocked(ctx, d, duel.StatusExpired, "expired"); err != nil {
				return err
			}
			return fmt.Errorf("%w: challenge expired", duel.ErrStateTransition)
		}
		var attempt string
		if d.Wagered() {
			held, err := c.ledger.Escrowed(ctx, d.ID)
			if err != nil {
				return err
			}
			// An attempt that died before its record write can leave the
			// opponent's stake behind; that stake is reused.
			if held < 2*d.Wager {
				attempt = c.newID()
				if err := c.ledger.MatchStake(ctx, d.ID, d.OpponentID, d.Wager, attempt); err != nil {
					return err
				}
			}
		}

		accepted := d.Clone()
		if err := accepted.Transition(duel.StatusAccepted); err != nil {
			return err
		}
		if err := c.records.UpdateDuel(ctx, accepted, duel.StatusPending); err != nil {
			if attempt != "" {
				if rerr := c.ledger.ReverseStake(ctx, d.ID, d.OpponentID, d.Wager, attempt); rerr != nil {
					metrics.Get().LedgerInconsistency.Inc()
					log.Error().Err(rerr).Str("duel_id", d.ID).Str("player_id", d.OpponentID).Int64("wager", d.Wager).
						Msg("stake escrowed for an acceptance that was never recorded")
					return fmt.Errorf("%w: reverse stake after failed accept: %v", duel.ErrLedgerInconsistency, rerr)
				}
			}
			return fmt.Errorf("accept duel: %w", err)
		}
		c.cancelDeadline(d.ID, timer.TagChallengeExpiry, "")

		ready := accepted.Clone()
		if err := ready.Transition(duel.StatusReadyCheck); err != nil {
			return err
		}
		if err := c.records.UpdateDuel(ctx, ready, duel.StatusAccepted); err != nil {
			c.scheduleAcceptAbort(d.ID)
			return fmt.Errorf("open ready check: %w", err)
		}

		now := c.now()
		st := duel.NewActiveState(ready, now.Add(c.cfg.ReadyTimeout), now)
		err = c.states.CompareAndSwap(ctx, st, 0)
		if errors.Is(err, activestate.ErrVersionMismatch) {
			err = c.states.Set(ctx, st)
		}
		if err != nil {
			log.Warn().Err(err).Str("duel_id", d.ID).Msg("create active state failed, cancelling duel")
			if _, cerr := c.cancelLocked(ctx, ready, "state_unavailable"); cerr != nil {
				return cerr
			}
			return fmt.Errorf("create active state: %w", err)
		}
		c.scheduleReadyTimeout(ready.ID, st.ReadyDeadline)
		c.publishState(ready, st)
		log.Info().Str("duel_id", d.ID).Str("player_id", playerID).Msg("challenge accepted")
		out = ready
		return nil
	})
	return out, err
}

// DeclineChallenge refunds the challenger and closes the duel as DECLINED.
func (c *Coordinator) DeclineChallenge(ctx context.Context, duelID, playerID string) (*duel.Duel, error) {
	var out *duel.Duel
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if d.Status != duel.StatusPending {
			return duel.StatusError("decline", d.Status)
		}
		if playerID != d.OpponentID {
			return duel.Validationf("only %s can decline this challenge", d.OpponentID)
		}
		out, err = c.closePreMatchLocked(ctx, d, duel.StatusDeclined, "declined")
		return err
	})
	return out, err
}

// ExpireChallenge closes a PENDING duel whose expiry has passed. Calls made
// before the expiry or after the duel moved on are no-ops.
func (c *Coordinator) ExpireChallenge(ctx context.Context, duelID string) (*duel.Duel, error) {
	var out *duel.Duel
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		out = d
		if d.Status != duel.StatusPending || c.now().Before(d.ExpiresAt) {
			return nil
		}
		out, err = c.closePreMatchLocked(ctx, d, duel.StatusExpired, "expired")
		return err
	})
	return out, err
}

// Cancel is allowed to either party until the match starts and refunds every
// stake held for the duel.
func (c *Coordinator) Cancel(ctx context.Context, duelID, actorID string) (*duel.Duel, error) {
	var out *duel.Duel
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if !d.IsParty(actorID) {
			return duel.Validationf("%q is not a party to duel %s", actorID, d.ID)
		}
		if !d.Status.PreMatch() {
			return duel.StatusError("cancel", d.Status)
		}
		out, err = c.cancelLocked(ctx, d, "cancelled_by_"+actorID)
		return err
	})
	return out, err
}

// cancelLocked closes a pre-match duel as CANCELLED with a full refund.
func (c *Coordinator) cancelLocked(ctx context.Context, d *duel.Duel, reason string) (*duel.Duel, error) {
	return c.closePreMatchLocked(ctx, d, duel.StatusCancelled, reason)
}

// closePreMatchLocked refunds, then writes the terminal status, then tears
// down ephemeral state. A failed refund leaves the record untouched.
func (c *Coordinator) closePreMatchLocked(ctx context.Context, d *duel.Duel, to duel.Status, reason string) (*duel.Duel, error) {
	if err := c.refundStakes(ctx, d); err != nil {
		metrics.Get().SettlementDeferred.Inc()
		log.Warn().Err(err).Str("duel_id", d.ID).Str("status", string(to)).Msg("refund deferred")
		return d, fmt.Errorf("%w: refund stakes: %v", duel.ErrSettlementDeferred, err)
	}
	expect := d.Status
	closed := d.Clone()
	if err := closed.Transition(to); err != nil {
		return d, err
	}
	now := c.now()
	outcome := duel.Cancelled(reason)
	closed.Outcome = &outcome
	closed.EndedAt = &now
	if err := c.records.UpdateDuel(ctx, closed, expect); err != nil {
		if errors.Is(err, duel.ErrStateTransition) || !d.Wagered() {
			return d, err
		}
		metrics.Get().LedgerInconsistency.Inc()
		log.Error().Err(err).Str("duel_id", d.ID).Str("status", string(to)).Int64("wager", d.Wager).
			Msg("stakes refunded but duel record not closed")
		return d, fmt.Errorf("%w: duel %s: %v", duel.ErrLedgerInconsistency, d.ID, err)
	}
	if err := c.states.Delete(ctx, d.ID); err != nil {
		log.Warn().Err(err).Str("duel_id", d.ID).Msg("delete active state failed")
	}
	c.clearDeadlines(d.ID)
	metrics.Get().DuelsEnded.WithLabelValues(string(closed.Status)).Inc()
	log.Info().Str("duel_id", d.ID).Str("status", string(closed.Status)).Str("reason", reason).Msg("duel closed before match")
	c.closeEvents(closed)
	return closed, nil
}

// refundStakes returns every stake held for d. The challenger's stake is
// always held; the opponent's is refunded when the escrow still covers it,
// which also recovers an acceptance whose status write never landed.
func (c *Coordinator) refundStakes(ctx context.Context, d *duel.Duel) error {
	if !d.Wagered() {
		return nil
	}
	if err := c.ledger.RefundStake(ctx, d.ID, d.ChallengerID, d.Wager); err != nil {
		return err
	}
	held, err := c.ledger.Escrowed(ctx, d.ID)
	if err != nil {
		return err
	}
	if held < d.Wager {
		return nil
	}
	return c.ledger.RefundStake(ctx, d.ID, d.OpponentID, d.Wager)
}

// scheduleAcceptAbort cancels a duel stuck in ACCEPTED, retrying until the
// cancel goes through or the duel has moved on.
func (c *Coordinator) scheduleAcceptAbort(duelID string) {
	c.schedule(duelID, timer.TagSettlementRetry, "", c.now().Add(c.cfg.SettleRetry), func(ctx context.Context) {
		if err := c.abortAcceptance(ctx, duelID); err != nil {
			log.Warn().Err(err).Str("duel_id", duelID).Dur("retry_in", c.cfg.SettleRetry).Msg("abort acceptance failed")
			if !errors.Is(err, duel.ErrNotFound) {
				c.scheduleAcceptAbort(duelID)
			}
		}
	})
}

func (c *Coordinator) abortAcceptance(ctx context.Context, duelID string) error {
	return c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if d.Status != duel.StatusAccepted {
			return nil
		}
		_, err = c.cancelLocked(ctx, d, "interrupted")
		return err
	})
}

func (c *Coordinator) scheduleExpiry(d *duel.Duel) {
	id := d.ID
	c.schedule(id, timer.TagChallengeExpiry, "", d.ExpiresAt, func(ctx context.Context) {
		expire := func(ctx context.Context) error {
			_, err := c.ExpireChallenge(ctx, id)
			return err
		}
		if err := expire(ctx); err != nil {
			c.retryLater(id, "challenge expiry", err, expire)
		}
	})
}
