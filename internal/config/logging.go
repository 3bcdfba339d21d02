package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// LogConfig drives the global zerolog logger. With LOG_FILE set, records are
// mirrored into a file that rotates at LOG_MAX_MB; LOG_MAX_BACKUPS rotated
// files are kept, and 0 truncates the file in place instead.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
	File        string `env:"LOG_FILE"`
	MaxMB       int    `env:"LOG_MAX_MB" envDefault:"10"`
	MaxBackups  int    `env:"LOG_MAX_BACKUPS" envDefault:"1"`
}

func LoadLog() (LogConfig, error) {
	var cfg LogConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c LogConfig) validate() error {
	switch {
	case c.MaxMB <= 0:
		return fmt.Errorf("LOG_MAX_MB must be positive, got %d", c.MaxMB)
	case c.MaxBackups < 0:
		return fmt.Errorf("LOG_MAX_BACKUPS must not be negative, got %d", c.MaxBackups)
	case c.SampleEvery < 0:
		return fmt.Errorf("LOG_SAMPLE_EVERY must not be negative, got %d", c.SampleEvery)
	}
	return nil
}
