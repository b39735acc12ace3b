package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("audit store unavailable")

func fastConfig(maxAttempts int) Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_RecoversWithinBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errStoreDown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_BudgetSpentWrapsLastError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(2), func() error {
		attempts++
		return errStoreDown
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
	// Initial attempt plus MaxAttempts re-attempts.
	assert.Equal(t, 3, attempts)
}

func TestRetry_DisabledRunsOnce(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{Enabled: false}, func() error {
		attempts++
		return errStoreDown
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	cfg := fastConfig(5)
	cfg.InitialDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Retry(ctx, cfg, func() error {
		attempts++
		return errStoreDown
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "cancel during the wait stops further attempts")
}

func TestDelayFor_DoublesAndCaps(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, delayFor(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, delayFor(cfg, 1))
	assert.Equal(t, 300*time.Millisecond, delayFor(cfg, 2), "capped at MaxDelay")
	assert.Equal(t, 300*time.Millisecond, delayFor(cfg, 5))
}
