package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Platform error taxonomy
	ErrTransient          = fmt.Errorf("transient platform error")
	ErrAuthorization      = fmt.Errorf("authorization failed")
	ErrNotFound           = fmt.Errorf("not found")
	ErrAmbiguousMatch     = fmt.Errorf("ambiguous match")
	ErrBatchLimitExceeded = fmt.Errorf("batch limit exceeded")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrFetch              = fmt.Errorf("failed to fetch playlist")
	ErrRunNotFound        = fmt.Errorf("sync run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// PlatformError is a classified failure returned by a platform client.
//
// Err is one of [ErrTransient], [ErrAuthorization], [ErrNotFound] or [ErrAPIRequest],
// so callers test the category with [errors.Is].
type PlatformError struct {
	Platform   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *PlatformError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *PlatformError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code onto the error taxonomy.
// It returns nil for 2xx and 3xx codes.
func ClassifyStatus(code int) error {
	switch {
	case code < 400:
		return nil
	case code == 401 || code == 403:
		return ErrAuthorization
	case code == 404:
		return ErrNotFound
	case code == 408 || code == 429 || code >= 500:
		return ErrTransient
	default:
		return ErrAPIRequest
	}
}

// ClassifyNetworkError wraps a transport failure as [ErrTransient].
// Context cancellation is returned unchanged.
func ClassifyNetworkError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// IsRetryable reports whether err belongs to the transient category.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsAuthorization reports whether err means the credentials were rejected.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

// IsNotFound reports whether err means the referenced resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
