package llm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType indicates which part of the provider configuration failed.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeRequest  ErrorType = "request"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a structured provider error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface. The endpoint is reduced to its host.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
// Status codes reported by go-openai are used when present; otherwise the
// message is inspected.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	statusCode := statusCodeOf(err)
	if statusCode > 0 {
		if classified := classifyStatus(statusCode, err); classified != nil {
			return classified
		}
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	if statusCode == 0 {
		for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
			if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
				statusCode = code
				break
			}
		}
	}

	withStatus := func(e *Error) *Error {
		e.StatusCode = statusCode
		return e
	}

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key"):
		return withStatus(NewError(ErrorTypeAuth, "authentication failed", false, err))

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return withStatus(NewError(ErrorTypeModel, "model not found", false, err))

	case strings.Contains(errStr, "404"):
		return withStatus(NewError(ErrorTypeEndpoint, "endpoint not found", false, err))

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return withStatus(NewError(ErrorTypeEndpoint, "connection failed", true, err))

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return withStatus(NewError(ErrorTypeEndpoint, "request timeout", true, err))

	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit"):
		return withStatus(NewError(ErrorTypeUnknown, "rate limited", true, err))

	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return withStatus(NewError(ErrorTypeEndpoint, "server error", true, err))
	}

	return withStatus(NewError(ErrorTypeUnknown, "embedding provider error", false, err))
}

func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyStatus(statusCode int, err error) *Error {
	var e *Error
	switch {
	case statusCode == 401 || statusCode == 403:
		e = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case statusCode == 404:
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "model") {
			e = NewError(ErrorTypeModel, "model not found", false, err)
		} else {
			e = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
		}
	case statusCode == 429:
		e = NewError(ErrorTypeUnknown, "rate limited", true, err)
	case statusCode >= 500:
		e = NewError(ErrorTypeEndpoint, "server error", true, err)
	case statusCode >= 400:
		e = NewError(ErrorTypeRequest, "request rejected", false, err)
	default:
		return nil
	}
	e.StatusCode = statusCode
	return e
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
