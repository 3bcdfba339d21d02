package config

import "testing"

func TestLoadLogDefaults(t *testing.T) {
	cfg, err := LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if cfg.Level != "info" || cfg.MaxMB != 10 || cfg.MaxBackups != 1 || cfg.File != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadLogRotationSettings(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/var/log/duel.log")
	t.Setenv("LOG_MAX_MB", "50")
	t.Setenv("LOG_MAX_BACKUPS", "0")

	cfg, err := LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if cfg.Level != "debug" || cfg.File != "/var/log/duel.log" || cfg.MaxMB != 50 || cfg.MaxBackups != 0 {
		t.Fatalf("unexpected log config: %+v", cfg)
	}
}

func TestLoadLogRejectsBadLimits(t *testing.T) {
	cases := map[string]string{
		"LOG_MAX_MB":       "0",
		"LOG_MAX_BACKUPS":  "-1",
		"LOG_SAMPLE_EVERY": "-2",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadLog(); err == nil {
				t.Fatalf("LoadLog() with %s=%s expected error", key, val)
			}
		})
	}
}
