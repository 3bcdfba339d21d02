package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`
	PostgresDSN  string `env:"POSTGRES_DSN"`

	StateBackend   string `env:"STATE_BACKEND" envDefault:"redis"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"duel-arena"`

	SeedPlayers []string `env:"SEED_PLAYERS" envSeparator:","`
	SeedBalance int64    `env:"SEED_BALANCE" envDefault:"1000"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}
