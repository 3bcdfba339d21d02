package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"duel-arena/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWritesToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duel.log")
	if err := Init(config.LogConfig{Level: "debug", File: path, MaxMB: 1}); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		setWriter(os.Stdout)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	log.Debug().Str("duel_id", "d1").Msg("duel settled")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"duel_id":"d1"`) {
		t.Fatalf("log file missing record: %s", b)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("level = %s", zerolog.GlobalLevel())
	}
}

func TestInitIgnoresUnknownLevel(t *testing.T) {
	if err := Init(config.LogConfig{Level: "chatty"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %s, want info", zerolog.GlobalLevel())
	}
	if Writer() != os.Stdout {
		t.Fatal("expected stdout sink without a log file")
	}
}
