package authsync

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeNoSession       = "NO_SESSION"
	TextCodeSessionError    = "SESSION_ERROR"
	TextCodeSessionExpired  = "SESSION_EXPIRED"
	TextCodeProfileNotFound = "PROFILE_NOT_FOUND"
	TextCodeProfileFetch    = "PROFILE_FETCH_ERROR"
	TextCodeRolesFetch      = "ROLES_FETCH_ERROR"
	TextCodeOrgFetch        = "ORG_FETCH_ERROR"
	TextCodeNetworkError    = "NETWORK_ERROR"
	TextCodeUnknownError    = "UNKNOWN_ERROR"
)

// ErrNoSession is returned when resolution exhausted every source.
var ErrNoSession = errors.New("no session could be resolved", errors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(errors.CodeUnauthorized)

// ErrSessionInvalid is returned when a candidate session failed validation.
var ErrSessionInvalid = errors.New("session failed validation", errors.CategoryAuth).
	WithTextCode(TextCodeSessionError).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned when a candidate session exists but its token
// is expired beyond the grace buffer.
var ErrSessionExpired = errors.New("session token expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrProfileNotFound is returned when the session is valid but no profile row
// exists. Distinct from a fetch failure.
var ErrProfileNotFound = errors.New("profile not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(errors.CodeNotFound)

// ErrProfileFetch is returned when the profile request fails. Profile is
// load-bearing for every downstream decision, so this surfaces in the
// snapshot error field.
var ErrProfileFetch = errors.New("failed to fetch profile", errors.CategoryInternal).
	WithTextCode(TextCodeProfileFetch).
	WithCode(errors.CodeInternal)

// ErrRolesFetch degrades silently; it is recorded for observability only.
var ErrRolesFetch = errors.New("failed to fetch roles", errors.CategoryInternal).
	WithTextCode(TextCodeRolesFetch).
	WithCode(errors.CodeInternal)

// ErrOrgFetch degrades silently; it is recorded for observability only.
var ErrOrgFetch = errors.New("failed to fetch organization", errors.CategoryInternal).
	WithTextCode(TextCodeOrgFetch).
	WithCode(errors.CodeInternal)

// ErrNetwork is returned when a bounded call timed out.
var ErrNetwork = errors.New("request timed out", errors.CategoryInternal).
	WithTextCode(TextCodeNetworkError).
	WithCode(errors.CodeInternal)

// ErrLoadTimeout is published by the watchdog when no cycle completes within
// the upper bound.
var ErrLoadTimeout = errors.New("authentication timed out before completing", errors.CategoryInternal).
	WithTextCode(TextCodeNetworkError).
	WithCode(errors.CodeInternal)

// ErrUnknown wraps unexpected failures with diagnostic detail in metadata.
var ErrUnknown = errors.New("unexpected authentication error", errors.CategoryInternal).
	WithTextCode(TextCodeUnknownError).
	WithCode(errors.CodeInternal)

// TextCodeOf extracts the taxonomy code from any error in the chain, or ""
// for plain errors.
func TextCodeOf(err error) string {
	if err == nil {
		return ""
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

// IsNotFoundError reports whether the error marks a missing record rather
// than a transport failure.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.Category == errors.CategoryNotFound
	}
	return false
}
