// Package llmerrors classifies model endpoint failures.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType represents a category of model endpoint error.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed requests (too long, invalid schema).
	ErrorTypeBadPrompt
	// ErrorTypeCanceled means the caller gave up.
	ErrorTypeCanceled
	// ErrorTypeUnknown represents unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeCanceled:
		return "canceled"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified model endpoint error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

func (e *Error) Error() string {
	if e.Message != "" && e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %s: %v", e.Type, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithCause creates a new classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// Classify maps an SDK error to an *Error. Already classified errors are returned as is.
// statusCode may be 0 when the SDK does not expose it; the message is then scanned.
func Classify(err error, statusCode int) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeCanceled, err, "request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}

	errStr := err.Error()
	if statusCode == 0 {
		statusCode = ExtractStatusCode(errStr)
	}

	withStatus := func(t ErrorType, msg string) *Error {
		return &Error{Type: t, StatusCode: statusCode, Message: msg, Err: err}
	}
	switch {
	case statusCode == 401:
		return withStatus(ErrorTypeAuth, "authentication failed - check API key")
	case statusCode == 403:
		return withStatus(ErrorTypeAuth, "permission denied - check API access")
	case statusCode == 429:
		return withStatus(ErrorTypeRateLimit, "rate limit exceeded")
	case statusCode == 400 || statusCode == 404 || statusCode == 413 || statusCode == 422:
		return withStatus(ErrorTypeBadPrompt, "bad request - check prompt format and parameters")
	case statusCode >= 500 && statusCode <= 599:
		return withStatus(ErrorTypeTransient, "server error")
	}

	lower := strings.ToLower(errStr)
	switch {
	case containsAny(lower, "timeout", "connection", "network", "temporary", "eof", "reset"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case containsAny(lower, "rate limit", "quota", "overloaded"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case containsAny(lower, "unauthorized", "api key", "authentication"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	case containsAny(lower, "invalid", "malformed", "too large", "too long"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, "prompt or request error")
	}
	return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
}

var statusPattern = regexp.MustCompile(`(?i)(?:status code:?|status:?|http)\s*"?([1-5][0-9]{2})\b`)

// ExtractStatusCode pulls an HTTP status code out of an SDK error message, or returns 0.
func ExtractStatusCode(errStr string) int {
	m := statusPattern.FindStringSubmatch(errStr)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// Large prompts are reduced to first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if halfMax*2 >= len(prompt) {
		return prompt
	}

	hash := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s...[%d chars, hash:%x]...%s",
		prompt[:halfMax], len(prompt), hash[:8], prompt[len(prompt)-halfMax:])
}
