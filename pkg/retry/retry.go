// Package retry runs provider and database calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- share of the delay added at random
	MaxSameErrorType int     // After N consecutive same-type errors, treat as permanent (0 disables)
}

// DefaultConfig returns 3 retries with 100ms initial delay, capped at 5s,
// doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn until it succeeds or retries are exhausted.
// Respects context cancellation during wait periods.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, false, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn and returns both result and error. The last
// result is returned even when every attempt failed.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, false, fn)
}

// DoIfRetryable only retries transient errors. Permanent errors (auth
// failures, bad requests) return immediately, and after MaxSameErrorType
// consecutive failures of one type the error is escalated to permanent.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, true, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResultIfRetryable is DoIfRetryable for functions returning a value.
func DoWithResultIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, true, fn)
}

func run[T any](ctx context.Context, cfg *Config, onlyTransient bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result = r
		lastErr = err

		if onlyTransient {
			if !IsRetryable(err) {
				return result, err
			}

			currentErrorType := classifyErrorType(err)
			if currentErrorType == lastErrorType {
				sameErrorCount++
				if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
					return result, fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
				}
			} else {
				sameErrorCount = 1
				lastErrorType = currentErrorType
			}
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their own retryability,
// such as *llm.Error.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	// Connection errors
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	// HTTP status codes
	"429",
	"500",
	"502",
	"503",
	"504",
	// HTTP error messages
	"rate limit",
	"service busy",
	"service unavailable",
	"too many requests",
}

// IsRetryable determines if an error is transient and worth retrying.
// A RetryableError anywhere in the chain decides; otherwise the message is
// matched against known transient failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType returns a coarse category ("503", "timeout", "connection", ...)
// used to detect repeated failures of the same kind.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429", "404", "403", "401", "400"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	default:
		return "unknown"
	}
}
