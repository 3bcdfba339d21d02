package duel

import "time"

type ActionKind string

const (
	ActionStand   ActionKind = "stand"
	ActionRedraw  ActionKind = "redraw"
	ActionAbility ActionKind = "ability"
)

type Action struct {
	Kind    ActionKind `json:"kind"`
	Discard []int      `json:"discard,omitempty"`
	Ability string     `json:"ability,omitempty"`
	Auto    bool       `json:"auto,omitempty"`
}

// Participant is one side of an ActiveState. The presence fields double as
// the presence record for the duel.
type Participant struct {
	PlayerID       string     `json:"player_id"`
	Ready          bool       `json:"ready"`
	Connected      bool       `json:"connected"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	Action         *Action    `json:"action,omitempty"`
	Hand           []string   `json:"hand,omitempty"`
	Score          int        `json:"score"`
	AbilityUses    int        `json:"ability_uses"`
	Cooldown       int        `json:"cooldown"`
	Shielded       bool       `json:"shielded,omitempty"`
}

// ActiveState is the in-flight coordination state of a duel between
// acceptance and termination. Version is owned by the active state store.
type ActiveState struct {
	DuelID        string         `json:"duel_id"`
	Version       int64          `json:"-"`
	Round         int            `json:"round"`
	Participants  [2]Participant `json:"participants"`
	Deck          []string       `json:"deck,omitempty"`
	ReadyDeadline time.Time      `json:"ready_deadline"`
	TurnDeadline  *time.Time     `json:"turn_deadline,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NewActiveState(d *Duel, readyDeadline, now time.Time) *ActiveState {
	return &ActiveState{
		DuelID: d.ID,
		Participants: [2]Participant{
			{PlayerID: d.ChallengerID},
			{PlayerID: d.OpponentID},
		},
		ReadyDeadline: readyDeadline,
		UpdatedAt:     now,
	}
}

// Seat returns the participant index for playerID, or -1.
func (s *ActiveState) Seat(playerID string) int {
	for i := range s.Participants {
		if s.Participants[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (s *ActiveState) BothReady() bool {
	return s.Participants[0].Ready && s.Participants[1].Ready
}

func (s *ActiveState) BothSubmitted() bool {
	return s.Participants[0].Action != nil && s.Participants[1].Action != nil
}

func (s *ActiveState) Clone() *ActiveState {
	if s == nil {
		return nil
	}
	out := *s
	out.Deck = append([]string(nil), s.Deck...)
	if s.TurnDeadline != nil {
		t := *s.TurnDeadline
		out.TurnDeadline = &t
	}
	for i := range s.Participants {
		p := s.Participants[i]
		p.Hand = append([]string(nil), p.Hand...)
		if p.DisconnectedAt != nil {
			t := *p.DisconnectedAt
			p.DisconnectedAt = &t
		}
		if p.Action != nil {
			a := *p.Action
			a.Discard = append([]int(nil), p.Action.Discard...)
			p.Action = &a
		}
		out.Participants[i] = p
	}
	return &out
}
