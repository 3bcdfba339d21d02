// Package activestate holds the ephemeral per-duel coordination state. Every
// successful write bumps the entry version and refreshes its TTL.
package activestate

import (
	"context"
	"errors"
	"time"

	"duel-arena/internal/duel"
)

var (
	ErrNotFound        = errors.New("active state not found")
	ErrVersionMismatch = errors.New("active state version mismatch")
)

const DefaultTTL = 2 * time.Hour

type Store interface {
	Get(ctx context.Context, duelID string) (*duel.ActiveState, error)
	// Set writes st unconditionally and stores the new version in st.Version.
	Set(ctx context.Context, st *duel.ActiveState) error
	// CompareAndSwap writes st only if the stored version equals expect.
	// expect 0 means the entry must not exist yet.
	CompareAndSwap(ctx context.Context, st *duel.ActiveState, expect int64) error
	Delete(ctx context.Context, duelID string) error
}
