package duel

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("duel_not_found")
	ErrValidation          = errors.New("validation_error")
	ErrInsufficientFunds   = errors.New("insufficient_funds")
	ErrConflict            = errors.New("conflict")
	ErrStateTransition     = errors.New("invalid_state_transition")
	ErrSettlementDeferred  = errors.New("settlement_deferred")
	ErrLedgerInconsistency = errors.New("ledger_inconsistency")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func TransitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrStateTransition, from, to)
}

// StatusError reports an operation that is not valid while the duel is in status.
func StatusError(op string, status Status) error {
	return fmt.Errorf("%w: %s not allowed in %s", ErrStateTransition, op, status)
}

// Code returns the stable wire code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "duel_not_found"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, ErrSettlementDeferred):
		return "settlement_deferred"
	case errors.Is(err, ErrLedgerInconsistency):
		return "ledger_inconsistency"
	default:
		return "internal_error"
	}
}
