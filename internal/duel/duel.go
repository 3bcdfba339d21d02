package duel

import (
	"context"
	"time"
)

type Kind string

const (
	KindFriendly Kind = "friendly"
	KindWagered  Kind = "wagered"
)

func (k Kind) Valid() bool {
	return k == KindFriendly || k == KindWagered
}

// Duel is the durable session record. Once Status is terminal the record is
// never written again.
type Duel struct {
	ID             string     `json:"id"`
	ChallengerID   string     `json:"challenger_id"`
	OpponentID     string     `json:"opponent_id"`
	Kind           Kind       `json:"kind"`
	Wager          int64      `json:"wager"`
	Status         Status     `json:"status"`
	Outcome        *Outcome   `json:"outcome,omitempty"`
	PendingOutcome *Outcome   `json:"pending_outcome,omitempty"`
	Rounds         int        `json:"rounds"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (d *Duel) Wagered() bool {
	return d.Kind == KindWagered && d.Wager > 0
}

func (d *Duel) IsParty(playerID string) bool {
	return playerID != "" && (playerID == d.ChallengerID || playerID == d.OpponentID)
}

// OpponentOf returns the other party, or "" when playerID is not a party.
func (d *Duel) OpponentOf(playerID string) string {
	switch playerID {
	case d.ChallengerID:
		return d.OpponentID
	case d.OpponentID:
		return d.ChallengerID
	default:
		return ""
	}
}

func (d *Duel) Parties() [2]string {
	return [2]string{d.ChallengerID, d.OpponentID}
}

// Committed returns how many parties have moved their stake into escrow for
// the current status.
func (d *Duel) Committed() int {
	if !d.Wagered() {
		return 0
	}
	switch d.Status {
	case StatusPending:
		return 1
	case StatusAccepted, StatusReadyCheck, StatusInProgress:
		return 2
	default:
		return 0
	}
}

func (d *Duel) Clone() *Duel {
	if d == nil {
		return nil
	}
	out := *d
	if d.Outcome != nil {
		o := *d.Outcome
		out.Outcome = &o
	}
	if d.PendingOutcome != nil {
		o := *d.PendingOutcome
		out.PendingOutcome = &o
	}
	if d.StartedAt != nil {
		t := *d.StartedAt
		out.StartedAt = &t
	}
	if d.EndedAt != nil {
		t := *d.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// LockKey names the lease that serializes every state-mutating operation on a duel.
func LockKey(duelID string) string {
	return "duel:" + duelID
}

// Records is the session record store.
type Records interface {
	CreateDuel(ctx context.Context, d *Duel) error
	GetDuel(ctx context.Context, id string) (*Duel, error)
	// UpdateDuel writes d only if the stored status still equals expect.
	UpdateDuel(ctx context.Context, d *Duel, expect Status) error
	ListOpenDuels(ctx context.Context) ([]*Duel, error)
}
