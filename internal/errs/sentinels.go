// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrStorage indicates the backing store could not be created, opened, locked or written.
	ErrStorage = errors.New("storage")

	// ErrValidation indicates user input that fails a validation rule.
	ErrValidation = errors.New("validation")

	// ErrGranularity indicates a derived duration that is off the quarter-hour grid.
	ErrGranularity = errors.New("granularity")
)

// RateLimitError carries the retry-after hint for a blocked login.
type RateLimitError struct {
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) hold for *RateLimitError.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// IsUserFacing reports whether err is a validation-class error that should be
// shown to the user instead of being treated as a system fault.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrGranularity)
}
