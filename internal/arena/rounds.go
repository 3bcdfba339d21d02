package arena

import (
	"context"
	"fmt"
	"time"

	"duel-arena/internal/duel"
	"duel-arena/internal/metrics"
	"duel-arena/internal/rules"
	"duel-arena/internal/timer"

	"github.com/rs/zerolog/log"
)

// RoundResult describes how a round was scored.
type RoundResult struct {
	Round    int                 `json:"round"`
	Hands    map[string][]string `json:"hands"`
	WinnerID string              `json:"winner_id,omitempty"`
	Shielded bool                `json:"shielded,omitempty"`
	Scores   map[string]int      `json:"scores"`
}

// SubmitAction records playerID's action for the current round and reports
// whether this call completed the round. Exactly one submission per round
// returns true.
func (c *Coordinator) SubmitAction(ctx context.Context, duelID, playerID string, action duel.Action) (bool, error) {
	var resolved bool
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		resolved = false
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if !d.IsParty(playerID) {
			return duel.Validationf("%q is not a party to duel %s", playerID, d.ID)
		}
		if d.Status != duel.StatusInProgress {
			return duel.StatusError("submit_action", d.Status)
		}
		if d.PendingOutcome != nil {
			return fmt.Errorf("%w: duel %s is settling", duel.ErrStateTransition, d.ID)
		}
		st, err := c.loadStateLocked(ctx, d)
		if err != nil {
			return err
		}
		next := st.Clone()
		p := &next.Participants[next.Seat(playerID)]
		if p.Action != nil {
			return duel.Validationf("action already submitted for round %d", next.Round)
		}
		if err := c.applyAction(next, p, action); err != nil {
			return err
		}
		next.UpdatedAt = c.now()

		if !next.BothSubmitted() {
			if err := c.states.CompareAndSwap(ctx, next, st.Version); err != nil {
				return err
			}
			c.publishState(d, next)
			return nil
		}
		resolved = true
		return c.resolveRoundLocked(ctx, d, st.Version, next)
	})
	return resolved, err
}

func (c *Coordinator) applyAction(st *duel.ActiveState, p *duel.Participant, action duel.Action) error {
	switch action.Kind {
	case duel.ActionStand:
	case duel.ActionRedraw:
		if len(action.Discard) == 0 {
			return duel.Validationf("redraw needs at least one discard index")
		}
		seen := make(map[int]bool, len(action.Discard))
		for _, idx := range action.Discard {
			if idx < 0 || idx >= len(p.Hand) {
				return duel.Validationf("discard index %d out of range", idx)
			}
			if seen[idx] {
				return duel.Validationf("discard index %d repeated", idx)
			}
			seen[idx] = true
		}
		drawn, rest, err := rules.Deal(st.Deck, len(action.Discard))
		if err != nil {
			return duel.Validationf("%v", err)
		}
		for i, idx := range action.Discard {
			p.Hand[idx] = drawn[i]
		}
		st.Deck = rest
	case duel.ActionAbility:
		if p.Cooldown > 0 {
			return duel.Validationf("abilities on cooldown for %d more rounds", p.Cooldown)
		}
		ability, err := c.abilities.Resolve(action.Ability)
		if err != nil {
			return duel.Validationf("%v", err)
		}
		switch ability.Effect.(type) {
		case rules.RedrawEffect:
			hand, rest, err := rules.Deal(st.Deck, len(p.Hand))
			if err != nil {
				return duel.Validationf("%v", err)
			}
			p.Hand, st.Deck = hand, rest
		case rules.ShieldEffect:
			p.Shielded = true
		default:
			return duel.Validationf("ability %q has no effect", ability.Name)
		}
		p.Cooldown = ability.Cooldown
		p.AbilityUses++
	default:
		return duel.Validationf("unknown action %q", action.Kind)
	}
	a := action
	a.Auto = false
	a.Discard = append([]int(nil), action.Discard...)
	p.Action = &a
	return nil
}

// resolveRoundLocked scores the current round of st, then either settles the
// duel or deals the next round. version is the stored version st replaces.
func (c *Coordinator) resolveRoundLocked(ctx context.Context, d *duel.Duel, version int64, st *duel.ActiveState) error {
	var ranks [2]rules.HandRank
	for i, p := range st.Participants {
		r, err := c.evaluator.Evaluate(p.Hand)
		if err != nil {
			log.Error().Err(err).Str("duel_id", d.ID).Str("player_id", p.PlayerID).Strs("hand", p.Hand).Msg("hand evaluation failed")
			_, serr := c.settleLocked(ctx, d.ID, duel.Cancelled("evaluation_failed"))
			return serr
		}
		ranks[i] = r
	}

	result := RoundResult{
		Round:  st.Round,
		Hands:  map[string][]string{},
		Scores: map[string]int{},
	}
	winner := -1
	switch rules.Compare(ranks[0], ranks[1]) {
	case 1:
		winner = 0
	case -1:
		winner = 1
	}
	if winner >= 0 && st.Participants[1-winner].Shielded {
		winner = -1
		result.Shielded = true
	}
	if winner >= 0 {
		st.Participants[winner].Score++
		result.WinnerID = st.Participants[winner].PlayerID
	}
	for _, p := range st.Participants {
		result.Hands[p.PlayerID] = append([]string(nil), p.Hand...)
		result.Scores[p.PlayerID] = p.Score
	}
	metrics.Get().RoundsResolved.Inc()

	if outcome, done := c.matchOutcome(st); done {
		if err := c.states.CompareAndSwap(ctx, st, version); err != nil {
			return err
		}
		c.cancelDeadline(d.ID, timer.TagTurnTimeout, "")
		c.publish(d.ID, EventRoundResolved, "", result)
		_, err := c.settleLocked(ctx, d.ID, outcome)
		return err
	}

	if err := c.dealRound(st, st.Round+1); err != nil {
		return err
	}
	if turnPaused(st) {
		st.TurnDeadline = nil
	}
	// The running turn timer stays armed until the new round is stored.
	if err := c.states.CompareAndSwap(ctx, st, version); err != nil {
		return err
	}
	if st.TurnDeadline != nil {
		c.scheduleTurnTimeout(d.ID, st.Round, *st.TurnDeadline)
	} else {
		c.cancelDeadline(d.ID, timer.TagTurnTimeout, "")
	}
	c.publish(d.ID, EventRoundResolved, "", result)
	c.publishState(d, st)
	return nil
}

func (c *Coordinator) matchOutcome(st *duel.ActiveState) (duel.Outcome, bool) {
	a, b := st.Participants[0], st.Participants[1]
	switch {
	case a.Score >= c.cfg.RoundsToWin:
		return duel.Winner(a.PlayerID), true
	case b.Score >= c.cfg.RoundsToWin:
		return duel.Winner(b.PlayerID), true
	case st.Round < c.cfg.MaxRounds:
		return duel.Outcome{}, false
	case a.Score > b.Score:
		return duel.Winner(a.PlayerID), true
	case b.Score > a.Score:
		return duel.Winner(b.PlayerID), true
	default:
		return duel.Draw(), true
	}
}

// dealRound resets st for round with a fresh deck and a new turn deadline.
// Ability cooldowns tick down once per round after the first.
func (c *Coordinator) dealRound(st *duel.ActiveState, round int) error {
	deck := c.newDeck()
	for i := range st.Participants {
		p := &st.Participants[i]
		hand, rest, err := rules.Deal(deck, c.cfg.HandSize)
		if err != nil {
			return err
		}
		deck = rest
		p.Hand = hand
		p.Action = nil
		p.Shielded = false
		if round > 1 && p.Cooldown > 0 {
			p.Cooldown--
		}
	}
	now := c.now()
	deadline := now.Add(c.cfg.TurnTimeout)
	st.Deck = deck
	st.Round = round
	st.TurnDeadline = &deadline
	st.UpdatedAt = now
	return nil
}

func (c *Coordinator) scheduleTurnTimeout(duelID string, round int, at time.Time) {
	c.schedule(duelID, timer.TagTurnTimeout, "", at, func(ctx context.Context) {
		run := func(ctx context.Context) error { return c.onTurnTimeout(ctx, duelID, round) }
		if err := run(ctx); err != nil {
			c.retryLater(duelID, "turn timeout", err, run)
		}
	})
}

// onTurnTimeout stands every participant that has not acted and resolves the
// round. Stale firings for an earlier round are ignored, as are firings while
// a participant is inside a disconnect grace period.
func (c *Coordinator) onTurnTimeout(ctx context.Context, duelID string, round int) error {
	return c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if d.Status != duel.StatusInProgress {
			return nil
		}
		if d.PendingOutcome != nil {
			_, err := c.settleLocked(ctx, d.ID, *d.PendingOutcome)
			return err
		}
		st, err := c.loadStateLocked(ctx, d)
		if err != nil {
			return err
		}
		if st.Round != round || turnPaused(st) || st.TurnDeadline == nil || c.now().Before(*st.TurnDeadline) {
			return nil
		}
		next := st.Clone()
		for i := range next.Participants {
			p := &next.Participants[i]
			if p.Action == nil {
				p.Action = &duel.Action{Kind: duel.ActionStand, Auto: true}
				log.Info().Str("duel_id", d.ID).Str("player_id", p.PlayerID).Int("round", round).Msg("turn timed out, auto stand")
			}
		}
		next.UpdatedAt = c.now()
		return c.resolveRoundLocked(ctx, d, st.Version, next)
	})
}
