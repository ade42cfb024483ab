package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if cfg.MaxSameErrorType != 5 {
		t.Errorf("expected MaxSameErrorType=5, got %d", cfg.MaxSameErrorType)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	callCount := 0
	expectedErr := errors.New("persistent error")
	err := Do(context.Background(), fastConfig(2), func() error {
		callCount++
		return expectedErr
	})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls (initial + 2 retries), got %d", callCount)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	callCount := 0
	err := Do(ctx, cfg, func() error {
		callCount++
		cancel()
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	callCount := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() ([]float32, error) {
		callCount++
		if callCount == 1 {
			return nil, errors.New("503 service unavailable")
		}
		return []float32{1, 2}, nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 values, got %d", len(got))
	}
}

type declaredError struct{ retryable bool }

func (e declaredError) Error() string     { return "declared" }
func (e declaredError) IsRetryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"declared retryable", declaredError{retryable: true}, true},
		{"declared permanent", declaredError{retryable: false}, false},
		{"wrapped declared", fmt.Errorf("batch 3: %w", declaredError{retryable: true}), true},
		{"declared wins over message", fmt.Errorf("503: %w", declaredError{retryable: false}), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limit", errors.New("status 429: rate limit reached"), true},
		{"auth", errors.New("status 401: invalid api key"), false},
		{"bad request", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		callCount++
		return declaredError{retryable: false}
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	callCount := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		callCount++
		return errors.New("503 service unavailable")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 3 {
		t.Errorf("expected escalation after 3 calls, got %d", callCount)
	}
}

func TestDoWithResultIfRetryable_RetriesTransient(t *testing.T) {
	callCount := 0
	got, err := DoWithResultIfRetryable(context.Background(), fastConfig(3), func() (int, error) {
		callCount++
		if callCount < 2 {
			return 0, declaredError{retryable: true}
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestClassifyErrorType(t *testing.T) {
	tests := map[string]string{
		"503 service unavailable":  "503",
		"connection reset by peer": "connection",
		"i/o timeout":              "timeout",
		"write: broken pipe":       "broken_pipe",
		"too many requests":        "rate_limit",
		"something else":           "unknown",
	}
	for msg, want := range tests {
		if got := classifyErrorType(errors.New(msg)); got != want {
			t.Errorf("classifyErrorType(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestApplyJitter_StaysWithinBounds(t *testing.T) {
	delay := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		got := applyJitter(delay, 0.1)
		if got < 90*time.Millisecond || got > 110*time.Millisecond {
			t.Fatalf("jittered delay %v out of bounds", got)
		}
	}
	if got := applyJitter(delay, 0); got != delay {
		t.Errorf("expected no jitter, got %v", got)
	}
}
