package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	// KindConfig is missing or rejected credentials. Fatal for the client.
	KindConfig ErrorKind = "config"
	// KindValidation is a payload the provider refused. Not retryable as-is.
	KindValidation ErrorKind = "validation"
	// KindTransient is a network failure, timeout, 429 or 5xx.
	KindTransient ErrorKind = "transient"
)

// ProviderError is returned by the registrar and email-domain clients.
type ProviderError struct {
	Provider   string
	Op         string
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %s error", e.Provider, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first ProviderError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsConfigError reports whether err is a credentials/configuration failure.
func IsConfigError(err error) bool { return KindOf(err) == KindConfig }

// IsValidationError reports whether the provider rejected the payload.
func IsValidationError(err error) bool { return KindOf(err) == KindValidation }

// IsTransientError reports whether retrying the whole operation may succeed.
func IsTransientError(err error) bool { return KindOf(err) == KindTransient }

// ClassifyStatus maps an HTTP status code onto an ErrorKind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindConfig
	case status == 429 || status >= 500:
		return KindTransient
	default:
		return KindValidation
	}
}
