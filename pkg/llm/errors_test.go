package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestError_Error_WithStatusCode(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
	}

	result := err.Error()
	if !strings.Contains(result, "HTTP 503") {
		t.Errorf("expected error message to contain 'HTTP 503', got: %s", result)
	}
	if !strings.Contains(result, "server error") {
		t.Errorf("expected error message to contain 'server error', got: %s", result)
	}
}

// The endpoint is reduced to its host so paths and query tokens never reach logs.
func TestError_Error_WithEndpoint(t *testing.T) {
	err := &Error{
		Type:     ErrorTypeEndpoint,
		Message:  "connection failed",
		Model:    "text-embedding-3-small",
		Endpoint: "https://api.openai.com/v1",
	}

	result := err.Error()
	if !strings.Contains(result, "endpoint=api.openai.com") {
		t.Errorf("expected error message to contain 'endpoint=api.openai.com', got: %s", result)
	}
	if !strings.Contains(result, "model=text-embedding-3-small") {
		t.Errorf("expected model in error message, got: %s", result)
	}
	if strings.Contains(result, "/v1") {
		t.Errorf("endpoint should be redacted to host only, got: %s", result)
	}
}

func TestError_UnwrapAndRetryable(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewError(ErrorTypeEndpoint, "connection failed", true, cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !err.IsRetryable() {
		t.Error("expected retryable error")
	}
	if !IsRetryable(fmt.Errorf("batch 2: %w", err)) {
		t.Error("expected wrapped error to stay retryable")
	}
	if GetErrorType(fmt.Errorf("batch 2: %w", err)) != ErrorTypeEndpoint {
		t.Error("expected endpoint error type through wrapping")
	}
	if GetErrorType(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("expected unknown type for plain errors")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		retryable  bool
		statusCode int
	}{
		{
			name:       "api error 401",
			err:        &openai.APIError{HTTPStatusCode: 401, Message: "Incorrect API key provided"},
			wantType:   ErrorTypeAuth,
			statusCode: 401,
		},
		{
			name:       "api error 404 model",
			err:        &openai.APIError{HTTPStatusCode: 404, Message: "The model `foo` does not exist"},
			wantType:   ErrorTypeModel,
			statusCode: 404,
		},
		{
			name:       "api error 429",
			err:        &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"},
			wantType:   ErrorTypeUnknown,
			retryable:  true,
			statusCode: 429,
		},
		{
			name:       "request error 502",
			err:        &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")},
			wantType:   ErrorTypeEndpoint,
			retryable:  true,
			statusCode: 502,
		},
		{
			name:       "api error 400",
			err:        &openai.APIError{HTTPStatusCode: 400, Message: "input too long"},
			wantType:   ErrorTypeRequest,
			statusCode: 400,
		},
		{
			name:      "connection refused",
			err:       errors.New("dial tcp 127.0.0.1:8080: connect: connection refused"),
			wantType:  ErrorTypeEndpoint,
			retryable: true,
		},
		{
			name:      "deadline",
			err:       errors.New("context deadline exceeded"),
			wantType:  ErrorTypeEndpoint,
			retryable: true,
		},
		{
			name:     "unknown",
			err:      errors.New("something odd"),
			wantType: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Type != tt.wantType {
				t.Errorf("type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if tt.statusCode != 0 && got.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", got.StatusCode, tt.statusCode)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyError_ReturnsExistingError(t *testing.T) {
	original := NewError(ErrorTypeAuth, "authentication failed", false, nil)
	if got := ClassifyError(fmt.Errorf("wrapped: %w", original)); got != original {
		t.Errorf("expected the existing *Error to be returned, got %v", got)
	}
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
