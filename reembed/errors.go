package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned by RetryWithBackoff for fewer than one attempt.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
