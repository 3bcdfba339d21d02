package config

import (
	"testing"
	"time"
)

func TestLoadDuelDefaults(t *testing.T) {
	cfg, err := LoadDuel()
	if err != nil {
		t.Fatalf("LoadDuel() error = %v", err)
	}
	if cfg != DefaultDuel() {
		t.Fatalf("LoadDuel() = %+v, want %+v", cfg, DefaultDuel())
	}
	if cfg.DisconnectGrace != 10*time.Minute || cfg.StateTTL != 2*time.Hour {
		t.Fatalf("unexpected timeouts: %+v", cfg)
	}
}

func TestLoadDuelOverrides(t *testing.T) {
	t.Setenv("DUEL_TURN_TIMEOUT", "10s")
	t.Setenv("DUEL_ROUNDS_TO_WIN", "3")
	t.Setenv("DUEL_MAX_ROUNDS", "7")

	cfg, err := LoadDuel()
	if err != nil {
		t.Fatalf("LoadDuel() error = %v", err)
	}
	if cfg.TurnTimeout != 10*time.Second || cfg.RoundsToWin != 3 || cfg.MaxRounds != 7 {
		t.Fatalf("unexpected duel config: %+v", cfg)
	}
}

func TestLoadDuelRejectsShortMatch(t *testing.T) {
	t.Setenv("DUEL_ROUNDS_TO_WIN", "4")
	t.Setenv("DUEL_MAX_ROUNDS", "3")

	if _, err := LoadDuel(); err == nil {
		t.Fatal("LoadDuel() expected error")
	}
}
