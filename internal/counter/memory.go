package counter

import (
	"context"
	"sync"
	"time"

	"molt-mart/internal/mart"
)

// MemoryCounter implements mart.Counter with in-process maps. It exists for
// single-node deployments and tests; counts do not survive a restart.
type MemoryCounter struct {
	mu        sync.Mutex
	rates     map[string]int64
	downloads map[string]int64
	clock     mart.Clock
}

var _ mart.Counter = (*MemoryCounter)(nil)

// NewMemoryCounter creates an empty in-memory counter. A nil clock falls
// back to the real clock.
func NewMemoryCounter(clock mart.Clock) *MemoryCounter {
	if clock == nil {
		clock = mart.RealClock{}
	}
	return &MemoryCounter{
		rates:     make(map[string]int64),
		downloads: make(map[string]int64),
		clock:     clock,
	}
}

func (c *MemoryCounter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	bucket := rateKey(key, c.clock.Now(), window)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[bucket]++
	return c.rates[bucket] <= int64(limit), nil
}

func (c *MemoryCounter) IncrDownloads(ctx context.Context, artifactID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads[artifactID]++
	return c.downloads[artifactID], nil
}

func (c *MemoryCounter) Close() error {
	return nil
}
