package duel

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusReadyCheck Status = "READY_CHECK"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusForfeited  Status = "FORFEITED"
	StatusDeclined   Status = "DECLINED"
	StatusExpired    Status = "EXPIRED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusDeclined, StatusExpired, StatusCancelled},
	StatusAccepted:   {StatusReadyCheck, StatusCancelled},
	StatusReadyCheck: {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusForfeited, StatusCancelled},
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusForfeited, StatusDeclined, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// PreMatch reports whether the duel can still be cancelled by a party.
func (s Status) PreMatch() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusReadyCheck
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves d to status to, or returns a state transition error
// without touching d.
func (d *Duel) Transition(to Status) error {
	if !CanTransition(d.Status, to) {
		return TransitionError(d.Status, to)
	}
	d.Status = to
	return nil
}
