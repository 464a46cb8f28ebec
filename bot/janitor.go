package bot

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"time"
)

// JanitorConfig tunes the throttle ledger sweep job.
type JanitorConfig struct {
	// Interval: how often to sweep the ledger
	Interval time.Duration
	// MaxAge: entries older than this are dropped; must stay at or above the
	// longest registered cooldown
	MaxAge time.Duration
}

// LoadJanitorConfig loads sweep settings from environment variables.
func LoadJanitorConfig() JanitorConfig {
	cfg := JanitorConfig{
		Interval: 10 * time.Minute,
		MaxAge:   time.Hour,
	}
	if s := os.Getenv("THROTTLE_SWEEP_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.Interval = d
		}
	}
	if s := os.Getenv("THROTTLE_MAX_AGE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.MaxAge = d
		}
	}
	return cfg
}

// StartJanitor periodically evicts stale throttle ledger entries until ctx is
// cancelled. Blocks; run it in a goroutine.
func StartJanitor(ctx context.Context, d *Dispatcher) {
	cfg := LoadJanitorConfig()

	slog.Info("throttle janitor starting",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge))

	// Stagger the first sweep so periodic jobs don't all fire together after boot.
	if half := int64(cfg.Interval / 2); half > 0 {
		jitter := time.Duration(rand.Int63n(half)) //nolint:gosec // G404: jitter timing doesn't need crypto rand
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("throttle janitor stopped")
			return
		case <-ticker.C:
			if n := d.EvictStale(cfg.MaxAge); n > 0 {
				slog.Debug("evicted stale throttle entries", slog.Int("count", n))
			}
		}
	}
}
