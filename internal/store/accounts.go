package store

import (
	"context"
	"errors"
	"fmt"

	"duel-arena/internal/duel"

	"github.com/jackc/pgx/v5"
)

var ErrKeyReused = errors.New("idempotency key reused for a different movement")

func (s *Store) EnsureAccount(ctx context.Context, account string, initial int64) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, account, initial)
	return err
}

// Balance returns 0 for accounts that were never written.
func (s *Store) Balance(ctx context.Context, account string) (int64, error) {
	var bal int64
	err := s.Pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, account).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

func (s *Store) Debit(ctx context.Context, account string, amount int64, key string) (int64, error) {
	if err := s.post(ctx, account, "", amount, key); err != nil {
		return 0, err
	}
	return s.Balance(ctx, account)
}

func (s *Store) Credit(ctx context.Context, account string, amount int64, key string) (int64, error) {
	if err := s.post(ctx, "", account, amount, key); err != nil {
		return 0, err
	}
	return s.Balance(ctx, account)
}

func (s *Store) Transfer(ctx context.Context, from, to string, amount int64, key string) error {
	return s.post(ctx, from, to, amount, key)
}

// post applies one idempotent movement. The posting row is claimed first so a
// replayed key commits nothing; the debit is a conditional update so the
// balance check and the write cannot interleave with another debit.
func (s *Store) post(ctx context.Context, from, to string, amount int64, key string) error {
	if amount < 0 {
		return duel.Validationf("amount must be positive")
	}
	if key == "" {
		return duel.Validationf("idempotency key required")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_postings (idempotency_key, from_account, to_account, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING`, key, from, to, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var prevFrom, prevTo string
		var prevAmount int64
		if err := tx.QueryRow(ctx, `
			SELECT from_account, to_account, amount FROM ledger_postings WHERE idempotency_key = $1`,
			key).Scan(&prevFrom, &prevTo, &prevAmount); err != nil {
			return err
		}
		if prevFrom != from || prevTo != to || prevAmount != amount {
			return fmt.Errorf("%s: %w", key, ErrKeyReused)
		}
		return nil
	}

	if from != "" {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts SET balance = balance - $2, updated_at = now()
			WHERE id = $1 AND balance >= $2`, from, amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s cannot cover %d", duel.ErrInsufficientFunds, from, amount)
		}
		if err := insertEntry(ctx, tx, from, -amount, key); err != nil {
			return err
		}
	}
	if to != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, balance) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()`,
			to, amount); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, to, amount, key); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertEntry(ctx context.Context, tx pgx.Tx, account string, amount int64, key string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, idempotency_key)
		VALUES ($1, $2, $3, $4)`, NewID(), account, amount, key)
	return err
}
