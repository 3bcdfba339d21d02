package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"duel-arena/internal/duel"

	"github.com/jackc/pgx/v5"
)

const duelColumns = `id, challenger_id, opponent_id, kind, wager, status, outcome, pending_outcome,
	rounds, created_at, expires_at, started_at, ended_at, updated_at`

func (s *Store) CreateDuel(ctx context.Context, d *duel.Duel) error {
	outcome, err := outcomeParam(d.Outcome)
	if err != nil {
		return err
	}
	pending, err := outcomeParam(d.PendingOutcome)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO duels (id, challenger_id, opponent_id, kind, wager, status, outcome, pending_outcome,
			rounds, created_at, expires_at, started_at, ended_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())`,
		d.ID, d.ChallengerID, d.OpponentID, string(d.Kind), d.Wager, string(d.Status), outcome, pending,
		d.Rounds, d.CreatedAt, d.ExpiresAt, d.StartedAt, d.EndedAt,
	)
	return err
}

func (s *Store) GetDuel(ctx context.Context, id string) (*duel.Duel, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+duelColumns+` FROM duels WHERE id = $1`, id)
	d, err := scanDuel(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return d, nil
}

// UpdateDuel rewrites the mutable columns guarded by the expected status.
func (s *Store) UpdateDuel(ctx context.Context, d *duel.Duel, expect duel.Status) error {
	outcome, err := outcomeParam(d.Outcome)
	if err != nil {
		return err
	}
	pending, err := outcomeParam(d.PendingOutcome)
	if err != nil {
		return err
	}
	var updatedAt time.Time
	err = s.Pool.QueryRow(ctx, `
		UPDATE duels
		SET status = $3, outcome = $4, pending_outcome = $5, rounds = $6,
		    started_at = $7, ended_at = $8, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		d.ID, string(expect), string(d.Status), outcome, pending, d.Rounds, d.StartedAt, d.EndedAt,
	).Scan(&updatedAt)
	if err == nil {
		d.UpdatedAt = updatedAt
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var current string
	if err := s.Pool.QueryRow(ctx, `SELECT status FROM duels WHERE id = $1`, d.ID).Scan(&current); err != nil {
		return mapNotFound(err)
	}
	return fmt.Errorf("%w: stored status %s, expected %s", duel.ErrStateTransition, current, expect)
}

func (s *Store) ListOpenDuels(ctx context.Context) ([]*duel.Duel, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+duelColumns+` FROM duels
		WHERE status IN ('PENDING', 'ACCEPTED', 'READY_CHECK', 'IN_PROGRESS')
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*duel.Duel, 0)
	for rows.Next() {
		d, err := scanDuel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDuel(row pgx.Row) (*duel.Duel, error) {
	var (
		d                duel.Duel
		kind, status     string
		outcome, pending []byte
	)
	if err := row.Scan(
		&d.ID, &d.ChallengerID, &d.OpponentID, &kind, &d.Wager, &status, &outcome, &pending,
		&d.Rounds, &d.CreatedAt, &d.ExpiresAt, &d.StartedAt, &d.EndedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Kind = duel.Kind(kind)
	d.Status = duel.Status(status)
	var err error
	if d.Outcome, err = outcomeValue(outcome); err != nil {
		return nil, err
	}
	if d.PendingOutcome, err = outcomeValue(pending); err != nil {
		return nil, err
	}
	return &d, nil
}

func outcomeParam(o *duel.Outcome) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func outcomeValue(b []byte) (*duel.Outcome, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var o duel.Outcome
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &o, nil
}
