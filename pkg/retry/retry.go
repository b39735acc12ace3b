// Package retry provides bounded exponential backoff for best-effort
// writes, such as the session audit path, where a transient store
// error is worth a couple of quick re-attempts before giving up.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

type Config struct {
	Enabled      bool          // disabled means exactly one attempt
	MaxAttempts  int           // re-attempts after the first failure
	InitialDelay time.Duration // delay before the first re-attempt
	MaxDelay     time.Duration // backoff cap
	Multiplier   float64       // delay growth factor per attempt
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn until it succeeds, the attempt budget is spent, or
// ctx is done. The last error is wrapped into the final failure.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	if !cfg.Enabled {
		return fn()
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during wait: %w", ctx.Err())
		case <-time.After(delayFor(cfg, attempt)):
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

func delayFor(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
