package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/hunt.db"`
	RedisURL string     `env:"REDIS_URL"` // empty disables the cross-instance event bridge
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// PointsInterval is how often the accrual loop credits per-minute
	// points to active teams.
	PointsInterval time.Duration `env:"POINTS_INTERVAL" envDefault:"1m"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
