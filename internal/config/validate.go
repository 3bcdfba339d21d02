package config

import "fmt"

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

func (c ServerConfig) validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=%s", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.StateBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STATE_BACKEND=%s", BackendRedis)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
	return nil
}

func (c DuelConfig) validate() error {
	if c.RoundsToWin < 1 {
		return fmt.Errorf("DUEL_ROUNDS_TO_WIN must be >= 1")
	}
	if c.MaxRounds < c.RoundsToWin {
		return fmt.Errorf("DUEL_MAX_ROUNDS must be >= DUEL_ROUNDS_TO_WIN")
	}
	if c.HandSize != 3 && c.HandSize != 5 && c.HandSize != 7 {
		return fmt.Errorf("DUEL_HAND_SIZE must be 3, 5 or 7")
	}
	if c.LockAttempts < 1 {
		return fmt.Errorf("DUEL_LOCK_ATTEMPTS must be >= 1")
	}
	return nil
}
