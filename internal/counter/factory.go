package counter

import (
	"fmt"

	"molt-mart/internal/config"
	"molt-mart/internal/mart"
)

// NewCounterFromConfig creates a counter instance based on the configuration.
func NewCounterFromConfig(cfg config.CounterConfig, clock mart.Clock) (mart.Counter, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCounter(clock), nil
	case "redis":
		return NewRedisCounter(cfg.RedisURL, clock)
	default:
		return nil, fmt.Errorf("unknown counter type: %s", cfg.Type)
	}
}
