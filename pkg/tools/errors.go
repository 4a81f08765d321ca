package tools

import (
	"errors"
	"fmt"
)

// ErrMissingSecret is wrapped by configuration errors raised when a provider credential is absent.
var ErrMissingSecret = errors.New("required secret not configured")

// ConfigurationError reports a setup problem: duplicate tool names, missing providers, absent secrets.
// It is fatal at startup and never retried at call time.
type ConfigurationError struct {
	Err     error
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Err)
	}
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewMissingSecretError builds the error a provider returns when invoked without its credential.
func NewMissingSecretError(provider string, names ...string) *ConfigurationError {
	return &ConfigurationError{
		Err:     ErrMissingSecret,
		Message: fmt.Sprintf("provider %s requires %v", provider, names),
	}
}

// UnknownToolError is returned by Dispatch when no provider declares the tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Tool %s not found", e.Name)
}

// ArgumentError reports a tool call the model built wrongly: a required argument is
// missing or has an unusable value. It says nothing about provider health, so it is
// never retried, never counted by a breaker and never replaced by fallback data.
type ArgumentError struct {
	Field   string
	Message string
}

func (e *ArgumentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
	}
	return "missing required argument: " + e.Field
}

// ProviderError wraps a failure raised by a provider while executing a tool.
type ProviderError struct {
	Err      error
	Provider string
	Tool     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed executing %s: %v", e.Provider, e.Tool, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err unless it is already a typed tools error.
func NewProviderError(provider, tool string, err error) error {
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) || IsCallerError(err) {
		return err
	}
	return &ProviderError{Provider: provider, Tool: tool, Err: err}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsUnknownTool reports whether err is or wraps an UnknownToolError.
func IsUnknownTool(err error) bool {
	var unknown *UnknownToolError
	return errors.As(err, &unknown)
}

// IsArgumentError reports whether err is or wraps an ArgumentError.
func IsArgumentError(err error) bool {
	var argErr *ArgumentError
	return errors.As(err, &argErr)
}

// IsCallerError reports errors caused by setup or by the call itself rather than by the
// provider: configuration errors, unknown tools and bad arguments.
func IsCallerError(err error) bool {
	return IsConfigurationError(err) || IsUnknownTool(err) || IsArgumentError(err)
}
