package authsync

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// DefaultConfig is the concrete Config used by most hosts. Zero values are
// filled in by NewDefaultConfig; Validate catches hosts that hand-build the
// struct and miss a required field.
type DefaultConfig struct {
	PendingSessionKey string
	MirrorKeyPrefix   string
	CookiePrefixes    []string
	CookieDomains     []string
	ResolveTimeout    time.Duration
	EnrichTimeout     time.Duration
	WatchdogTimeout   time.Duration
	SignOutTimeout    time.Duration
	TokenGraceBuffer  time.Duration
	SignedOutRoute    string
}

var _ Config = (*DefaultConfig)(nil)

// NewDefaultConfig returns a config with production defaults. The mirror
// prefix is provider-specific, so it is the one mandatory argument.
func NewDefaultConfig(mirrorKeyPrefix string) *DefaultConfig {
	return &DefaultConfig{
		PendingSessionKey: "authsync.pending_session",
		MirrorKeyPrefix:   mirrorKeyPrefix,
		CookiePrefixes:    []string{mirrorKeyPrefix, "authsync."},
		CookieDomains:     []string{""},
		ResolveTimeout:    3 * time.Second,
		EnrichTimeout:     8 * time.Second,
		WatchdogTimeout:   20 * time.Second,
		SignOutTimeout:    2 * time.Second,
		TokenGraceBuffer:  DefaultExpiryBuffer,
		SignedOutRoute:    "/login",
	}
}

// Validate checks required fields and timeout sanity.
func (c *DefaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PendingSessionKey, validation.Required),
		validation.Field(&c.MirrorKeyPrefix, validation.Required),
		validation.Field(&c.SignedOutRoute, validation.Required),
		validation.Field(&c.ResolveTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.EnrichTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.WatchdogTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SignOutTimeout, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

func (c *DefaultConfig) GetPendingSessionKey() string      { return c.PendingSessionKey }
func (c *DefaultConfig) GetMirrorKeyPrefix() string        { return c.MirrorKeyPrefix }
func (c *DefaultConfig) GetCookiePrefixes() []string       { return c.CookiePrefixes }
func (c *DefaultConfig) GetCookieDomains() []string        { return c.CookieDomains }
func (c *DefaultConfig) GetResolveTimeout() time.Duration  { return c.ResolveTimeout }
func (c *DefaultConfig) GetEnrichTimeout() time.Duration   { return c.EnrichTimeout }
func (c *DefaultConfig) GetWatchdogTimeout() time.Duration { return c.WatchdogTimeout }
func (c *DefaultConfig) GetSignOutTimeout() time.Duration  { return c.SignOutTimeout }
func (c *DefaultConfig) GetTokenGraceBuffer() time.Duration {
	return c.TokenGraceBuffer
}
func (c *DefaultConfig) GetSignedOutRoute() string { return c.SignedOutRoute }
