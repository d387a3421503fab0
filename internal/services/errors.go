package services

import "errors"

// Standard service errors
var (
	// Network and connectivity errors
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrTimeout            = errors.New("operation timed out")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("access forbidden")

	// Data errors
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input provided")
	ErrInvalidFormat    = errors.New("invalid format")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInvalidMessageID = errors.New("invalid message ID")

	// Cache errors
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrCacheMiss        = errors.New("cache miss")

	// Store errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")

	// Sync engine errors
	ErrSingleTargetOnly  = errors.New("action accepts a single message")
	ErrMutationInFlight  = errors.New("message already has a pending action")
	ErrUnknownMutation   = errors.New("unknown mutation kind")
	ErrNotMounted        = errors.New("mailbox view is not mounted")
	ErrNothingSelected   = errors.New("no message selected")
	ErrMissingRecipients = errors.New("message has no recipients")
)

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrRateLimited)
}

// IsPermanentError determines if an error is permanent and should not be retried
func IsPermanentError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidMessageID)
}
