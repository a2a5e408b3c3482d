package authsync

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// JWKSValidator verifies provider-issued access tokens against the provider's
// JWK Set. It is optional: the engine's own expiry checks decode claims
// without verification, but deployments that treat storage mirrors as
// untrusted can verify a recovered token's signature before adopting it.
type JWKSValidator struct {
	jwks   *keyfunc.JWKS
	logger Logger
}

// JWKSValidatorOption customizes validator construction.
type JWKSValidatorOption func(*JWKSValidator)

// WithJWKSLogger overrides the logger.
func WithJWKSLogger(logger Logger) JWKSValidatorOption {
	return func(v *JWKSValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewJWKSValidator fetches the key set from the provider's JWKS endpoint and
// keeps it refreshed in the background.
func NewJWKSValidator(jwksURL string, opts ...JWKSValidatorOption) (*JWKSValidator, error) {
	v := &JWKSValidator{logger: defLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.logger.Warn("jwks refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load JWK set").
			WithCode(errors.CodeInternal)
	}

	v.jwks = jwks
	return v, nil
}

// Validate verifies the token signature and returns its claims.
func (v *JWKSValidator) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, errors.Wrap(err, ErrSessionInvalid.Category, ErrSessionInvalid.Message).
			WithTextCode(ErrSessionInvalid.TextCode)
	}
	if !token.Valid {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// Close stops the background key refresh.
func (v *JWKSValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
