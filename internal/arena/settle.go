package arena

import (
	"context"
	"errors"

	"duel-arena/internal/duel"
	"duel-arena/internal/timer"

	"github.com/rs/zerolog/log"
)

// settleLocked settles while the caller holds the duel lock. Deferred
// settlements are retried off the timer until they go through.
func (c *Coordinator) settleLocked(ctx context.Context, duelID string, outcome duel.Outcome) (*duel.Duel, error) {
	d, err := c.settle.SettleLocked(ctx, duelID, outcome)
	if err != nil && retryable(err) {
		c.retryLater(duelID, "settle", err, func(ctx context.Context) error {
			_, err := c.settle.Settle(ctx, duelID, outcome)
			return err
		})
	}
	return d, err
}

// DuelSettled drops the duel's deadlines and closes its live stream.
func (c *Coordinator) DuelSettled(_ context.Context, d *duel.Duel) {
	c.clearDeadlines(d.ID)
	c.closeEvents(d)
}

func (c *Coordinator) retryLater(duelID, op string, cause error, fn func(ctx context.Context) error) {
	if !retryable(cause) {
		log.Warn().Err(cause).Str("duel_id", duelID).Str("op", op).Msg("deadline action failed")
		return
	}
	log.Warn().Err(cause).Str("duel_id", duelID).Str("op", op).Dur("retry_in", c.cfg.SettleRetry).Msg("deadline action deferred")
	c.schedule(duelID, timer.TagSettlementRetry, "", c.now().Add(c.cfg.SettleRetry), func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			c.retryLater(duelID, op, err, fn)
		}
	})
}

func retryable(err error) bool {
	return errors.Is(err, duel.ErrSettlementDeferred) ||
		errors.Is(err, duel.ErrLedgerInconsistency) ||
		errors.Is(err, duel.ErrConflict)
}
