// Package lock grants short-lived, owner-tokened leases keyed by string.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/internal/duel"
	"duel-arena/internal/metrics"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBusy means another owner holds the lease.
	ErrBusy = errors.New("lock busy")
	// ErrLeaseLost means the lease expired or was taken over before renew/release.
	ErrLeaseLost = errors.New("lease lost")
)

type Lease struct {
	Key   string
	Token string
	TTL   time.Duration
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
	Renew(ctx context.Context, lease *Lease) error
	Release(ctx context.Context, lease *Lease) error
}

type Options struct {
	TTL         time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.Backoff <= 0 {
		o.Backoff = 20 * time.Millisecond
	}
	return o
}

func newToken() string {
	return uuid.NewString()
}

// Do runs fn while holding the lease for key. Busy leases are retried with
// exponential backoff; after opts.MaxAttempts the call fails with
// duel.ErrConflict. The lease is renewed at half its TTL until fn returns.
func Do(ctx context.Context, l Locker, key string, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.withDefaults()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.Backoff
	eb.MaxInterval = 16 * opts.Backoff

	lease, err := backoff.Retry(ctx, func() (*Lease, error) {
		lease, err := l.Acquire(ctx, key, opts.TTL)
		if errors.Is(err, ErrBusy) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return lease, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(opts.MaxAttempts)), backoff.WithMaxElapsedTime(0))
	if err != nil {
		if errors.Is(err, ErrBusy) {
			metrics.Get().LockConflicts.Inc()
			return fmt.Errorf("%w: lock %s held after %d attempts", duel.ErrConflict, key, opts.MaxAttempts)
		}
		return fmt.Errorf("acquire %s: %w", key, err)
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		keepAlive(ctx, l, lease, stop)
	}()
	defer func() {
		close(stop)
		<-renewed
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.Release(releaseCtx, lease); err != nil && !errors.Is(err, ErrLeaseLost) {
			log.Warn().Err(err).Str("lock_key", key).Msg("lock release failed")
		}
	}()
	return fn(ctx)
}

func keepAlive(ctx context.Context, l Locker, lease *Lease, stop <-chan struct{}) {
	ticker := time.NewTicker(lease.TTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Renew(ctx, lease); err != nil {
				log.Warn().Err(err).Str("lock_key", lease.Key).Msg("lock renew failed")
				return
			}
		}
	}
}
