package authsync

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiryBuffer is the safety margin applied when judging token expiry,
// so a token about to lapse mid-request is already treated as expired.
const DefaultExpiryBuffer = 30 * time.Second

// TokenValidator judges bearer token expiry from the decodable expiry claim.
// The signature is NOT verified here; the engine trusts the provider to have
// issued the token and only needs to know whether it is still usable. Any
// decode failure is treated as expired (fail-closed).
type TokenValidator struct {
	buffer time.Duration
	now    func() time.Time
}

// TokenValidatorOption customizes validator construction.
type TokenValidatorOption func(*TokenValidator)

// WithExpiryBuffer overrides the safety buffer.
func WithExpiryBuffer(buffer time.Duration) TokenValidatorOption {
	return func(v *TokenValidator) {
		if buffer >= 0 {
			v.buffer = buffer
		}
	}
}

// WithValidatorClock injects a custom clock (useful for tests).
func WithValidatorClock(clock func() time.Time) TokenValidatorOption {
	return func(v *TokenValidator) {
		if clock != nil {
			v.now = clock
		}
	}
}

// NewTokenValidator returns a validator with the default 30s buffer.
func NewTokenValidator(opts ...TokenValidatorOption) *TokenValidator {
	v := &TokenValidator{
		buffer: DefaultExpiryBuffer,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// IsExpired reports whether the token's expiry claim falls within the safety
// buffer of now. Malformed tokens and tokens without an expiry claim are
// expired.
func (v *TokenValidator) IsExpired(token string) bool {
	exp, err := v.ExpiresAt(token)
	if err != nil {
		return true
	}
	return !v.now().Add(v.buffer).Before(exp)
}

// ExpiresAt decodes the expiry claim without verifying the signature.
func (v *TokenValidator) ExpiresAt(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrSessionInvalid.WithMetadata(map[string]any{
			"reason": "missing expiry claim",
		})
	}

	return exp.Time, nil
}

// IsTokenExpired is the package-level convenience form using the wall clock.
func IsTokenExpired(token string, buffer time.Duration) bool {
	v := NewTokenValidator(WithExpiryBuffer(buffer))
	return v.IsExpired(token)
}
