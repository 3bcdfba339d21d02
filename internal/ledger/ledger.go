package ledger

import (
	"context"
	"fmt"
)

// Book is the account ledger. Every mutation carries an idempotency key; a
// repeated key with the same movement is a no-op. Debits that would take an
// account below zero fail with duel.ErrInsufficientFunds.
type Book interface {
	Debit(ctx context.Context, account string, amount int64, key string) (int64, error)
	Credit(ctx context.Context, account string, amount int64, key string) (int64, error)
	Transfer(ctx context.Context, from, to string, amount int64, key string) error
	Balance(ctx context.Context, account string) (int64, error)
}

type Ledger struct {
	Book Book
}

func New(b Book) *Ledger {
	return &Ledger{Book: b}
}

func EscrowAccount(duelID string) string {
	return "escrow:" + duelID
}

func StakeKey(duelID, playerID string) string {
	return fmt.Sprintf("duel:%s:stake:%s", duelID, playerID)
}

// AttemptStakeKey scopes a stake to one acceptance attempt, so an attempt
// made after an earlier one was reversed moves money again.
func AttemptStakeKey(duelID, playerID, attempt string) string {
	return fmt.Sprintf("duel:%s:stake:%s:%s", duelID, playerID, attempt)
}

func ReversalKey(duelID, playerID, attempt string) string {
	return fmt.Sprintf("duel:%s:reverse:%s:%s", duelID, playerID, attempt)
}

func RefundKey(duelID, playerID string) string {
	return fmt.Sprintf("duel:%s:refund:%s", duelID, playerID)
}

func PayoutKey(duelID, playerID string) string {
	return fmt.Sprintf("duel:%s:payout:%s", duelID, playerID)
}

// LockStake moves a party's wager into the duel escrow iff the party can cover it.
func (l *Ledger) LockStake(ctx context.Context, duelID, playerID string, amount int64) error {
	return l.Book.Transfer(ctx, playerID, EscrowAccount(duelID), amount, StakeKey(duelID, playerID))
}

// MatchStake escrows a party's wager for one acceptance attempt.
func (l *Ledger) MatchStake(ctx context.Context, duelID, playerID string, amount int64, attempt string) error {
	return l.Book.Transfer(ctx, playerID, EscrowAccount(duelID), amount, AttemptStakeKey(duelID, playerID, attempt))
}

// ReverseStake hands back a stake escrowed by MatchStake for the same attempt.
func (l *Ledger) ReverseStake(ctx context.Context, duelID, playerID string, amount int64, attempt string) error {
	return l.Book.Transfer(ctx, EscrowAccount(duelID), playerID, amount, ReversalKey(duelID, playerID, attempt))
}

func (l *Ledger) RefundStake(ctx context.Context, duelID, playerID string, amount int64) error {
	return l.Book.Transfer(ctx, EscrowAccount(duelID), playerID, amount, RefundKey(duelID, playerID))
}

func (l *Ledger) PayOut(ctx context.Context, duelID, playerID string, amount int64) error {
	return l.Book.Transfer(ctx, EscrowAccount(duelID), playerID, amount, PayoutKey(duelID, playerID))
}

func (l *Ledger) Escrowed(ctx context.Context, duelID string) (int64, error) {
	return l.Book.Balance(ctx, EscrowAccount(duelID))
}

func (l *Ledger) Balance(ctx context.Context, account string) (int64, error) {
	return l.Book.Balance(ctx, account)
}
