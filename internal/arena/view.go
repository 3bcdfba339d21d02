package arena

import (
	"context"
	"errors"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/duel"
)

type ParticipantView struct {
	PlayerID    string       `json:"player_id"`
	Ready       bool         `json:"ready"`
	Connected   bool         `json:"connected"`
	Submitted   bool         `json:"submitted"`
	Score       int          `json:"score"`
	Cooldown    int          `json:"cooldown"`
	AbilityUses int          `json:"ability_uses"`
	Hand        []string     `json:"hand,omitempty"`
	Action      *duel.Action `json:"action,omitempty"`
}

// StateView is what one player may see of a duel. Only the viewer's own hand
// and pending action are included.
type StateView struct {
	DuelID        string             `json:"duel_id"`
	Status        duel.Status        `json:"status"`
	Round         int                `json:"round"`
	ReadyDeadline *time.Time         `json:"ready_deadline,omitempty"`
	TurnDeadline  *time.Time         `json:"turn_deadline,omitempty"`
	Participants  [2]ParticipantView `json:"participants"`
	Outcome       *duel.Outcome      `json:"outcome,omitempty"`
}

func ViewFor(d *duel.Duel, st *duel.ActiveState, viewer string) StateView {
	v := StateView{
		DuelID:  d.ID,
		Status:  d.Status,
		Outcome: d.Outcome,
		Participants: [2]ParticipantView{
			{PlayerID: d.ChallengerID},
			{PlayerID: d.OpponentID},
		},
	}
	if st == nil {
		return v
	}
	v.Round = st.Round
	if d.Status == duel.StatusReadyCheck && !st.ReadyDeadline.IsZero() {
		t := st.ReadyDeadline
		v.ReadyDeadline = &t
	}
	if st.TurnDeadline != nil {
		t := *st.TurnDeadline
		v.TurnDeadline = &t
	}
	for i, p := range st.Participants {
		pv := ParticipantView{
			PlayerID:    p.PlayerID,
			Ready:       p.Ready,
			Connected:   p.Connected,
			Submitted:   p.Action != nil,
			Score:       p.Score,
			Cooldown:    p.Cooldown,
			AbilityUses: p.AbilityUses,
		}
		if p.PlayerID == viewer {
			pv.Hand = append([]string(nil), p.Hand...)
			pv.Action = p.Action
		}
		v.Participants[i] = pv
	}
	return v
}

// State returns the duel as seen by viewer. Non-parties get the public view.
func (c *Coordinator) State(ctx context.Context, duelID, viewer string) (StateView, error) {
	d, err := c.records.GetDuel(ctx, duelID)
	if err != nil {
		return StateView{}, err
	}
	if !d.IsParty(viewer) {
		viewer = ""
	}
	if d.Status.IsTerminal() {
		return ViewFor(d, nil, viewer), nil
	}
	st, err := c.states.Get(ctx, duelID)
	if errors.Is(err, activestate.ErrNotFound) {
		return ViewFor(d, nil, viewer), nil
	}
	if err != nil {
		return StateView{}, err
	}
	return ViewFor(d, st, viewer), nil
}
