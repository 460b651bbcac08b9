package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnavailable signals that a single LLM provider could not serve a request.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrAllProvidersFailed signals that every available provider failed for one dispatch.
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrQuotaExhausted signals a spent daily quota for a provider.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrFetch signals a failed web fetch or search round-trip.
	ErrFetch = errors.New("fetch failed")
	// ErrMathParse signals an expression the math skill could not understand.
	ErrMathParse = errors.New("could not parse math expression")
	// ErrTimeout signals an exhausted time budget.
	ErrTimeout = errors.New("timeout")
	// ErrConfig signals an unrecoverable startup configuration problem.
	ErrConfig = errors.New("invalid configuration")
)

// ConfigError is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfig.Error(), e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// ProviderError ties a provider failure to the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProviderUnavailable, e.Err} }

// NewProviderError wraps err as a recoverable failure of one provider.
func NewProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

// ParseError carries the input the math skill rejected.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (%q)", ErrMathParse.Error(), e.Reason, e.Input)
}

func (e *ParseError) Unwrap() error { return ErrMathParse }
