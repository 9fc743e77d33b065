package lastfm

import (
	"errors"
	"fmt"
)

// Error is an error returned by the Last.fm API.
type Error struct {
	Code    int    // Last.fm error code
	Message string // Error message from Last.fm
}

func (e *Error) Error() string {
	return fmt.Sprintf("lastfm: error %d: %s", e.Code, e.Message)
}

// Is reports whether target is a Last.fm error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Temporary reports whether the request may succeed if retried.
func (e *Error) Temporary() bool {
	switch e.Code {
	case ErrCodeOperationFailed, ErrCodeServiceOffline, ErrCodeTempUnavailable, ErrCodeRateLimitExceeded:
		return true
	default:
		return false
	}
}

// Last.fm error codes.
const (
	ErrCodeInvalidService       = 2
	ErrCodeInvalidMethod        = 3
	ErrCodeAuthenticationFailed = 4
	ErrCodeInvalidFormat        = 5
	ErrCodeInvalidParameters    = 6
	ErrCodeInvalidResourceSpec  = 7
	ErrCodeOperationFailed      = 8
	ErrCodeInvalidSessionKey    = 9
	ErrCodeInvalidAPIKey        = 10
	ErrCodeServiceOffline       = 11
	ErrCodeInvalidSignature     = 13
	ErrCodeUnauthorizedToken    = 14
	ErrCodeExpiredToken         = 15
	ErrCodeTempUnavailable      = 16
	ErrCodeRateLimitExceeded    = 29
)

var (
	// ErrNoSessionKey is returned when an operation requires authentication
	// but no session key has been set.
	ErrNoSessionKey = errors.New("lastfm: session key required")

	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("lastfm: invalid configuration")
)

// IsAuthError reports whether err means the session or credentials are unusable
// and retrying with the same session key cannot succeed.
func IsAuthError(err error) bool {
	var lfmErr *Error
	if !errors.As(err, &lfmErr) {
		return errors.Is(err, ErrNoSessionKey)
	}
	switch lfmErr.Code {
	case ErrCodeAuthenticationFailed, ErrCodeInvalidSessionKey, ErrCodeInvalidAPIKey, ErrCodeInvalidSignature:
		return true
	}
	return false
}
