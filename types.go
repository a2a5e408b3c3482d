package authsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthEventType enumerates identity provider lifecycle events.
type AuthEventType string

const (
	EventInitialSession AuthEventType = "INITIAL_SESSION"
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
)

// AuthEvent is an immutable message emitted by the identity provider.
// Session may be nil; events without a payload trigger the full resolver
// fallback chain.
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}

// IdentityClient is the boundary to the external identity provider. The
// CurrentSession accessor is authoritative but may hang indefinitely, which is
// why the resolver always races it against a timeout. Reset drops any cached
// provider handle so the next resolution starts from a clean slate.
type IdentityClient interface {
	CurrentSession(ctx context.Context) (*Session, error)
	AdoptSession(ctx context.Context, session *Session) error
	SignOut(ctx context.Context) error
	Events() <-chan AuthEvent
	Reset()
}

// DirectoryClient reads profile, role, organization, and department records
// with bearer-token-authenticated requests. Each call honors its context
// deadline independently.
type DirectoryClient interface {
	FetchProfile(ctx context.Context, accessToken, userID string) (*Profile, error)
	FetchRoles(ctx context.Context, accessToken, userID string) ([]Role, error)
	FetchOrganization(ctx context.Context, accessToken string, orgID uuid.UUID) (*Organization, error)
	FetchDepartments(ctx context.Context, accessToken, userID string) ([]string, error)
}

// KeyValueStore is one storage tier holding opaque string blobs. Persistent
// and tab-scoped tiers share this interface; hosts may back it with anything
// from an in-memory map to a database table.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Cookie is one entry in the cookie-like session mirror.
type Cookie struct {
	Name    string
	Value   string
	Domain  string
	Path    string
	Expires time.Time
}

// CookieStore is the cookie-like mirror with domain/path scoping.
type CookieStore interface {
	List(ctx context.Context) ([]Cookie, error)
	Set(ctx context.Context, cookie Cookie) error
	Delete(ctx context.Context, name, domain, path string) error
}

// Config holds engine options
type Config interface {
	GetPendingSessionKey() string
	GetMirrorKeyPrefix() string
	GetCookiePrefixes() []string
	GetCookieDomains() []string
	GetResolveTimeout() time.Duration
	GetEnrichTimeout() time.Duration
	GetWatchdogTimeout() time.Duration
	GetSignOutTimeout() time.Duration
	GetTokenGraceBuffer() time.Duration
	GetSignedOutRoute() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHSYNC "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
