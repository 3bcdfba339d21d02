package duel

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTransitionsFollowStateMachine(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusDeclined, true},
		{StatusPending, StatusInProgress, false},
		{StatusAccepted, StatusReadyCheck, true},
		{StatusReadyCheck, StatusInProgress, true},
		{StatusReadyCheck, StatusForfeited, false},
		{StatusInProgress, StatusForfeited, true},
		{StatusInProgress, StatusReadyCheck, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tc := range cases {
		d := &Duel{Status: tc.from}
		err := d.Transition(tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrStateTransition) {
				t.Fatalf("%s -> %s: expected state transition error, got %v", tc.from, tc.to, err)
			}
			if d.Status != tc.from {
				t.Fatalf("%s -> %s: status changed to %s on failure", tc.from, tc.to, d.Status)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusForfeited, StatusDeclined, StatusExpired, StatusCancelled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
		if len(transitions[s]) != 0 {
			t.Fatalf("%s has outgoing transitions", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusAccepted, StatusReadyCheck, StatusInProgress} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestOutcomeValidate(t *testing.T) {
	d := &Duel{ChallengerID: "a", OpponentID: "b"}
	if err := Winner("a").Validate(d); err != nil {
		t.Fatalf("winner a: %v", err)
	}
	if err := Forfeiter("c").Validate(d); !errors.Is(err, ErrValidation) {
		t.Fatalf("forfeiter c: expected validation error, got %v", err)
	}
	if err := Draw().Validate(d); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if !Cancelled("x").Same(Cancelled("y")) {
		t.Fatal("cancelled outcomes with different reasons should be the same")
	}
	if Winner("a").Same(Winner("b")) {
		t.Fatal("different winners compared equal")
	}
	if Forfeiter("a").TerminalStatus() != StatusForfeited {
		t.Fatal("forfeit should map to FORFEITED")
	}
}

func TestCommittedTracksEscrowedParties(t *testing.T) {
	d := &Duel{Kind: KindWagered, Wager: 10, Status: StatusPending}
	if d.Committed() != 1 {
		t.Fatalf("pending committed = %d", d.Committed())
	}
	d.Status = StatusReadyCheck
	if d.Committed() != 2 {
		t.Fatalf("ready check committed = %d", d.Committed())
	}
	d.Status = StatusCompleted
	if d.Committed() != 0 {
		t.Fatalf("completed committed = %d", d.Committed())
	}
	friendly := &Duel{Kind: KindFriendly, Status: StatusInProgress}
	if friendly.Committed() != 0 {
		t.Fatal("friendly duels hold no escrow")
	}
}

func TestActiveStateCloneIsDeep(t *testing.T) {
	now := time.Now()
	st := NewActiveState(&Duel{ID: "d1", ChallengerID: "a", OpponentID: "b"}, now, now)
	st.Participants[0].Hand = []string{"As", "Kd"}
	st.Participants[1].Action = &Action{Kind: ActionRedraw, Discard: []int{1}}
	cp := st.Clone()
	cp.Participants[0].Hand[0] = "2c"
	cp.Participants[1].Action.Discard[0] = 4
	if st.Participants[0].Hand[0] != "As" || st.Participants[1].Action.Discard[0] != 1 {
		t.Fatal("clone shares memory with original")
	}
	if st.Seat("b") != 1 || st.Seat("zz") != -1 {
		t.Fatal("unexpected seat lookup")
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("load: %w", ErrNotFound):                  "duel_not_found",
		Validationf("bad"):                                   "invalid_request",
		TransitionError(StatusPending, StatusInProgress):     "invalid_state_transition",
		fmt.Errorf("%w: ledger down", ErrSettlementDeferred): "settlement_deferred",
		errors.New("boom"):                                   "internal_error",
	}
	for err, want := range cases {
		if got := Code(err); got != want {
			t.Fatalf("Code(%v) = %s, want %s", err, got, want)
		}
	}
}
