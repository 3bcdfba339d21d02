package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type DuelConfig struct {
	ChallengeTTL    time.Duration `env:"DUEL_CHALLENGE_TTL" envDefault:"10m"`
	ReadyTimeout    time.Duration `env:"DUEL_READY_TIMEOUT" envDefault:"2m"`
	TurnTimeout     time.Duration `env:"DUEL_TURN_TIMEOUT" envDefault:"45s"`
	DisconnectGrace time.Duration `env:"DUEL_DISCONNECT_GRACE" envDefault:"10m"`
	StateTTL        time.Duration `env:"DUEL_STATE_TTL" envDefault:"2h"`
	SettleRetry     time.Duration `env:"DUEL_SETTLE_RETRY" envDefault:"5s"`

	LockTTL      time.Duration `env:"DUEL_LOCK_TTL" envDefault:"5s"`
	LockAttempts int           `env:"DUEL_LOCK_ATTEMPTS" envDefault:"8"`
	LockBackoff  time.Duration `env:"DUEL_LOCK_BACKOFF" envDefault:"20ms"`

	RoundsToWin int `env:"DUEL_ROUNDS_TO_WIN" envDefault:"2"`
	MaxRounds   int `env:"DUEL_MAX_ROUNDS" envDefault:"5"`
	HandSize    int `env:"DUEL_HAND_SIZE" envDefault:"5"`
}

func LoadDuel() (DuelConfig, error) {
	var cfg DuelConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

// DefaultDuel returns the defaults without reading the environment.
func DefaultDuel() DuelConfig {
	return DuelConfig{
		ChallengeTTL:    10 * time.Minute,
		ReadyTimeout:    2 * time.Minute,
		TurnTimeout:     45 * time.Second,
		DisconnectGrace: 10 * time.Minute,
		StateTTL:        2 * time.Hour,
		SettleRetry:     5 * time.Second,
		LockTTL:         5 * time.Second,
		LockAttempts:    8,
		LockBackoff:     20 * time.Millisecond,
		RoundsToWin:     2,
		MaxRounds:       5,
		HandSize:        5,
	}
}
