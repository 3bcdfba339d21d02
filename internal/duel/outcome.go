package duel

import "fmt"

type OutcomeKind string

const (
	OutcomeWinner    OutcomeKind = "winner"
	OutcomeDraw      OutcomeKind = "draw"
	OutcomeForfeit   OutcomeKind = "forfeit"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the terminal result of a duel. PlayerID names the winner for
// OutcomeWinner and the forfeiter for OutcomeForfeit.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	PlayerID string      `json:"player_id,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

func Winner(playerID string) Outcome {
	return Outcome{Kind: OutcomeWinner, PlayerID: playerID}
}

func Draw() Outcome {
	return Outcome{Kind: OutcomeDraw}
}

func Forfeiter(playerID string) Outcome {
	return Outcome{Kind: OutcomeForfeit, PlayerID: playerID}
}

func Cancelled(reason string) Outcome {
	return Outcome{Kind: OutcomeCancelled, Reason: reason}
}

// Same compares outcomes ignoring Reason.
func (o Outcome) Same(other Outcome) bool {
	return o.Kind == other.Kind && o.PlayerID == other.PlayerID
}

func (o Outcome) TerminalStatus() Status {
	switch o.Kind {
	case OutcomeWinner, OutcomeDraw:
		return StatusCompleted
	case OutcomeForfeit:
		return StatusForfeited
	default:
		return StatusCancelled
	}
}

func (o Outcome) Validate(d *Duel) error {
	switch o.Kind {
	case OutcomeWinner, OutcomeForfeit:
		if !d.IsParty(o.PlayerID) {
			return Validationf("outcome %s names %q which is not a party", o.Kind, o.PlayerID)
		}
	case OutcomeDraw, OutcomeCancelled:
		if o.PlayerID != "" {
			return Validationf("outcome %s takes no player", o.Kind)
		}
	default:
		return Validationf("unknown outcome kind %q", o.Kind)
	}
	return nil
}

func (o Outcome) String() string {
	if o.PlayerID == "" {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.PlayerID)
}
