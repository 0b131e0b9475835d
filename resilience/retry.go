package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ar-conmit/hedera-mirror-node/logging"
)

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64

	// Retryable classifies errors; nil treats every error as permanent.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the commit retry policy used when none is configured
func DefaultRetryPolicy(retryable func(error) bool) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
		Retryable:     retryable,
	}
}

// RetryManager handles retry logic with backoff
type RetryManager struct {
	policy  *RetryPolicy
	logger  *logging.ComponentLogger
	onRetry func()

	mu      sync.Mutex
	metrics RetryMetrics
}

// RetryMetrics tracks retry statistics
type RetryMetrics struct {
	TotalAttempts     int64
	SuccessfulRetries int64
	FailedRetries     int64
	TotalRetryTime    time.Duration
}

// NewRetryManager creates a new retry manager. onRetry, when set, is called
// before every repeated attempt.
func NewRetryManager(policy *RetryPolicy, logger *logging.ComponentLogger, onRetry func()) *RetryManager {
	if policy == nil {
		policy = DefaultRetryPolicy(nil)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RetryManager{policy: policy, logger: logger, onRetry: onRetry}
}

// Execute runs fn until it succeeds, returns a permanent error, or the
// attempts are exhausted.
func (rm *RetryManager) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	startTime := time.Now()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				rm.record(func(m *RetryMetrics) {
					m.SuccessfulRetries++
					m.TotalRetryTime += time.Since(startTime)
				})
				rm.logger.Info().
					Str("operation", operation).
					Int("attempts", attempt).
					Dur("total_time", time.Since(startTime)).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		rm.record(func(m *RetryMetrics) { m.TotalAttempts++ })

		if !rm.isRetryable(err) {
			return err
		}

		if attempt >= rm.policy.MaxAttempts {
			rm.record(func(m *RetryMetrics) {
				m.FailedRetries++
				m.TotalRetryTime += time.Since(startTime)
			})
			rm.logger.Error().
				Str("operation", operation).
				Int("attempts", attempt).
				Err(err).
				Msg("Operation failed after max attempts")
			return fmt.Errorf("operation failed after %d attempts: %w", attempt, err)
		}

		delay := rm.calculateDelay(attempt)
		rm.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Err(err).
			Msg("Operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		if rm.onRetry != nil {
			rm.onRetry()
		}
	}
}

func (rm *RetryManager) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return rm.policy.Retryable != nil && rm.policy.Retryable(err)
}

// calculateDelay returns the exponential backoff with jitter for an attempt
func (rm *RetryManager) calculateDelay(attempt int) time.Duration {
	delay := float64(rm.policy.InitialDelay) * math.Pow(rm.policy.BackoffFactor, float64(attempt-1))

	if rm.policy.JitterFactor > 0 {
		delay += delay * rm.policy.JitterFactor * (2*rand.Float64() - 1)
	}
	if delay > float64(rm.policy.MaxDelay) {
		delay = float64(rm.policy.MaxDelay)
	}
	return time.Duration(delay)
}

func (rm *RetryManager) record(update func(m *RetryMetrics)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	update(&rm.metrics)
}

// GetMetrics returns retry metrics
func (rm *RetryManager) GetMetrics() RetryMetrics {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.metrics
}
