package retry

import (
	"context"
	goerrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/lancelop89/shorts-tracker/internal/errors"
	"github.com/lancelop89/shorts-tracker/internal/logger"
)

var log = logger.New()

// SetLogger replaces the logger used for retry diagnostics.
func SetLogger(l *logger.Logger) {
	if l != nil {
		log = l
	}
}

// ErrMaxAttempts is wrapped by the error returned once every attempt has failed.
var ErrMaxAttempts = goerrors.New("max attempts exceeded")

// DefaultBackoff is the fixed pause between the first attempt and the retry.
const DefaultBackoff = 2 * time.Second

// Config holds retry configuration
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the policy used for every YouTube call:
// one retry after a fixed 2s pause.
func DefaultConfig() Config {
	return SingleRetry(DefaultBackoff)
}

// SingleRetry returns a policy of exactly two attempts separated by a fixed delay.
func SingleRetry(delay time.Duration) Config {
	return Config{
		MaxAttempts:  2,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
	}
}

// Value runs op until it succeeds, fails with a non-retriable error, or
// config.MaxAttempts is reached. On failure it returns the zero value of T.
func Value[T any](ctx context.Context, config Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info(fmt.Sprintf("Operation succeeded after %d attempts", attempt), nil)
			}
			return result, nil
		}

		lastErr = err

		if !errors.IsRetriable(err) {
			log.Error("Non-retriable error occurred", err, nil)
			return zero, err
		}

		if attempt == maxAttempts {
			break
		}

		delay := CalculateBackoff(attempt, config)
		log.Warning(fmt.Sprintf("Attempt %d/%d failed, retrying in %v", attempt, maxAttempts, delay), err, map[string]string{
			"attempt": fmt.Sprintf("%d", attempt),
			"delay":   delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w: %w", maxAttempts, ErrMaxAttempts, lastErr)
}

// IsMaxRetriesExceeded checks if an error is due to max retries being exceeded
func IsMaxRetriesExceeded(err error) bool {
	return goerrors.Is(err, ErrMaxAttempts)
}

// CalculateBackoff calculates the backoff duration for a given attempt
func CalculateBackoff(attempt int, config Config) time.Duration {
	if attempt <= 0 {
		return config.InitialDelay
	}

	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		return config.MaxDelay
	}
	return delay
}
