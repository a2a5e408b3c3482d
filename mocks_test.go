package authsync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	authsync "github.com/goliatone/go-authsync"
	"github.com/google/uuid"
)

// signedToken builds an HS256 token with the given expiry. The engine only
// decodes claims, so the signing key is irrelevant.
func signedToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()
	claims := &authsync.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			// IssuedAt alone cannot distinguish tokens minted in the same
			// second (jwt truncates times to second precision), so a unique
			// jti keeps every signed token distinct.
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: userID + "@example.com",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func validSession(t *testing.T, userID string) *authsync.Session {
	t.Helper()
	exp := time.Now().Add(time.Hour)
	return &authsync.Session{
		AccessToken:  signedToken(t, userID, exp),
		RefreshToken: "refresh-" + userID,
		User:         authsync.User{ID: userID, Email: userID + "@example.com"},
		ExpiresAt:    exp,
	}
}

func expiredSession(t *testing.T, userID string) *authsync.Session {
	t.Helper()
	exp := time.Now().Add(-time.Hour)
	return &authsync.Session{
		AccessToken:  signedToken(t, userID, exp),
		RefreshToken: "refresh-" + userID,
		User:         authsync.User{ID: userID, Email: userID + "@example.com"},
		ExpiresAt:    exp,
	}
}

type stubIdentityClient struct {
	mu           sync.Mutex
	events       chan authsync.AuthEvent
	current      *authsync.Session
	currentErr   error
	currentDelay time.Duration
	adopted      []*authsync.Session
	adoptErr     error
	adoptedCh    chan *authsync.Session
	signOutErr   error
	signOutDelay time.Duration
	signOutCalls int
	resetCalls   int
}

func newStubIdentityClient() *stubIdentityClient {
	return &stubIdentityClient{
		events:    make(chan authsync.AuthEvent, 8),
		adoptedCh: make(chan *authsync.Session, 8),
	}
}

func (c *stubIdentityClient) CurrentSession(ctx context.Context) (*authsync.Session, error) {
	c.mu.Lock()
	delay := c.currentDelay
	session := c.current
	err := c.currentErr
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return session, err
}

func (c *stubIdentityClient) AdoptSession(ctx context.Context, session *authsync.Session) error {
	c.mu.Lock()
	c.adopted = append(c.adopted, session)
	err := c.adoptErr
	c.mu.Unlock()

	select {
	case c.adoptedCh <- session:
	default:
	}
	return err
}

func (c *stubIdentityClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.signOutCalls++
	delay := c.signOutDelay
	err := c.signOutErr
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (c *stubIdentityClient) Events() <-chan authsync.AuthEvent { return c.events }

func (c *stubIdentityClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetCalls++
}

func (c *stubIdentityClient) resetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetCalls
}

func (c *stubIdentityClient) adoptedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.adopted)
}

type stubDirectory struct {
	mu           sync.Mutex
	profile      *authsync.Profile
	profileErr   error
	profileDelay time.Duration
	roles        []authsync.Role
	rolesErr     error
	org          *authsync.Organization
	orgErr       error
	orgCalls     int
	departments  []string
	deptErr      error
	deptCalls    int
	profileCalls int
	rolesCalls   int
}

func (d *stubDirectory) FetchProfile(ctx context.Context, accessToken, userID string) (*authsync.Profile, error) {
	d.mu.Lock()
	d.profileCalls++
	delay := d.profileDelay
	profile := d.profile
	err := d.profileErr
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return profile, err
}

func (d *stubDirectory) FetchRoles(ctx context.Context, accessToken, userID string) ([]authsync.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolesCalls++
	return d.roles, d.rolesErr
}

func (d *stubDirectory) FetchOrganization(ctx context.Context, accessToken string, orgID uuid.UUID) (*authsync.Organization, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orgCalls++
	return d.org, d.orgErr
}

func (d *stubDirectory) FetchDepartments(ctx context.Context, accessToken, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deptCalls++
	return d.departments, d.deptErr
}

func (d *stubDirectory) profileCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.profileCalls
}

func (d *stubDirectory) organizationCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orgCalls
}

func (d *stubDirectory) departmentCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deptCalls
}

// testConfig returns a config with short timeouts so tests stay fast.
func testConfig() *authsync.DefaultConfig {
	cfg := authsync.NewDefaultConfig("idp-auth-token.")
	cfg.ResolveTimeout = 200 * time.Millisecond
	cfg.EnrichTimeout = 500 * time.Millisecond
	cfg.WatchdogTimeout = 2 * time.Second
	cfg.SignOutTimeout = 200 * time.Millisecond
	return cfg
}

// recordingSink collects activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []authsync.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event authsync.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) byType(eventType authsync.ActivityEventType) []authsync.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authsync.ActivityEvent
	for _, ev := range s.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
