package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN     string        `env:"DATABASE_DSN,required=true"`
	RedisURL        string        `env:"REDIS_URL,required=true"`
	APIPort         int           `env:"API_PORT,default=8080"`
	MetricsPort     int           `env:"METRICS_PORT,default=9100"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	RateLimitPerSec int           `env:"RATE_LIMIT_PER_SEC,default=100"`
	CacheTTL        time.Duration `env:"CACHE_TTL,default=5m"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL,default=1h"`
	SeedFile        string        `env:"SEED_FILE"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
