package binance

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx response with the exchange's code and msg
// preserved verbatim.
type APIError struct {
	StatusCode int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %d: %s (HTTP %d)", e.Code, e.Msg, e.StatusCode)
}

// AuthError means the API credentials are invalid, expired, or lack a
// required permission.
type AuthError struct {
	APIError
}

// RateLimitError is returned when 429/418 persists after all retries.
type RateLimitError struct {
	StatusCode int
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (HTTP %d), retry after %ds", e.StatusCode, e.RetryAfter)
}

// Exchange codes signalling that the API key lacks the "Enable Fiat"
// permission. The fiat sync step treats these as a clean skip.
var fiatPermissionCodes = map[int]bool{-2015: true, -1002: true, -2014: true}

// IsFiatPermissionError reports whether err is an exchange error caused
// by a missing fiat permission on the API key.
func IsFiatPermissionError(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return fiatPermissionCodes[authErr.Code]
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fiatPermissionCodes[apiErr.Code]
	}
	return false
}
