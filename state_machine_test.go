package authsync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	authsync "github.com/goliatone/go-authsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	client     *stubIdentityClient
	directory  *stubDirectory
	persistent *authsync.MemoryStore
	tab        *authsync.MemoryStore
	cookies    *authsync.MemoryCookieStore
	sink       *recordingSink
	cfg        *authsync.DefaultConfig

	redirectMu sync.Mutex
	redirects  []string

	engine *authsync.AuthEngine
}

func newEngineFixture(t *testing.T, cfg *authsync.DefaultConfig) *engineFixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}

	f := &engineFixture{
		client:     newStubIdentityClient(),
		directory:  &stubDirectory{},
		persistent: authsync.NewMemoryStore(),
		tab:        authsync.NewMemoryStore(),
		cookies:    authsync.NewMemoryCookieStore(),
		sink:       &recordingSink{},
		cfg:        cfg,
	}
	f.engine = authsync.NewAuthEngine(f.client, f.directory, f.persistent, f.tab, f.cookies, cfg,
		authsync.WithEngineActivitySink(f.sink),
		authsync.WithRedirect(func(route string) {
			f.redirectMu.Lock()
			defer f.redirectMu.Unlock()
			f.redirects = append(f.redirects, route)
		}),
	)
	return f
}

func (f *engineFixture) redirectedTo() []string {
	f.redirectMu.Lock()
	defer f.redirectMu.Unlock()
	out := make([]string, len(f.redirects))
	copy(out, f.redirects)
	return out
}

func waitForSnapshot(t *testing.T, engine *authsync.AuthEngine, cond func(authsync.AuthSnapshot) bool) authsync.AuthSnapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(engine.Current())
	}, 3*time.Second, 10*time.Millisecond)
	return engine.Current()
}

func TestAuthEngine_InitialCycleAuthenticates(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}
	f.directory.roles = []authsync.Role{authsync.RoleOrgAdmin, authsync.RoleRecruiter}

	f.engine.Start()
	defer f.engine.Close()

	snapshot := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading
	})

	require.NotNil(t, snapshot.User)
	assert.Equal(t, "user-1", snapshot.User.ID)
	assert.Equal(t, authsync.RoleOrgAdmin, snapshot.PrimaryRole)
	assert.True(t, snapshot.IsOrgAdmin)
	assert.False(t, snapshot.IsSuperAdmin)
	assert.Nil(t, snapshot.Error)
	assert.Positive(t, snapshot.Version)
}

func TestAuthEngine_NoSessionIsCleanUnauthenticated(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.engine.Start()
	defer f.engine.Close()

	snapshot := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return !s.IsLoading && !s.IsAuthenticated
	})

	assert.Nil(t, snapshot.Error, "absence of a session is not an error")
	assert.Nil(t, snapshot.User)
	assert.Empty(t, snapshot.Roles)
}

func TestAuthEngine_RefreshAuthRunsNewCycle(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}

	f.engine.Start()
	defer f.engine.Close()

	first := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading
	})

	f.engine.RefreshAuth()

	second := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading && s.Version > first.Version
	})
	assert.Greater(t, second.Version, first.Version)
}

func TestAuthEngine_TokenRefreshedSwapsSessionOnly(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}
	f.directory.roles = []authsync.Role{authsync.RoleRecruiter}

	f.engine.Start()
	defer f.engine.Close()

	before := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading
	})
	profileCallsBefore := f.directory.profileCallCount()

	refreshed := validSession(t, "user-1")
	f.client.events <- authsync.AuthEvent{Type: authsync.EventTokenRefreshed, Session: refreshed}

	after := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.Session != nil && s.Session.AccessToken == refreshed.AccessToken
	})

	// Identity and authorization data survive untouched; enrichment is not
	// re-run for a token rotation.
	assert.Equal(t, before.Profile, after.Profile)
	assert.Equal(t, before.Roles, after.Roles)
	assert.Equal(t, before.PrimaryRole, after.PrimaryRole)
	assert.Equal(t, profileCallsBefore, f.directory.profileCallCount())

	events := f.sink.byType(authsync.ActivityEventTokenRefreshed)
	require.Len(t, events, 1)
	assert.Equal(t, "user-1", events[0].UserID)
}

func TestAuthEngine_TokenRefreshedIgnoredWhenUnauthenticated(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.engine.Start()
	defer f.engine.Close()

	settled := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return !s.IsLoading && !s.IsAuthenticated
	})

	f.client.events <- authsync.AuthEvent{Type: authsync.EventTokenRefreshed, Session: validSession(t, "user-1")}

	// Give the event loop a moment; nothing should change.
	time.Sleep(100 * time.Millisecond)
	current := f.engine.Current()
	assert.Equal(t, settled.Version, current.Version)
	assert.False(t, current.IsAuthenticated)
}

func TestAuthEngine_SignedOutEventIsTerminalWithoutPurge(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}
	require.NoError(t, f.persistent.Set(context.Background(), f.cfg.GetMirrorKeyPrefix()+"main", "mirror-blob"))

	f.engine.Start()
	defer f.engine.Close()

	waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading
	})

	f.client.events <- authsync.AuthEvent{Type: authsync.EventSignedOut}

	snapshot := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return !s.IsAuthenticated && !s.IsLoading
	})
	assert.Nil(t, snapshot.Error)
	assert.Nil(t, snapshot.Session)

	// The provider announced the sign-out; it owns its own storage. Only the
	// public SignOut action purges.
	_, ok, err := f.persistent.Get(context.Background(), f.cfg.GetMirrorKeyPrefix()+"main")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, f.client.resetCount())
}

func TestAuthEngine_SignOutPurgesAndRedirects(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}

	ctx := context.Background()
	require.NoError(t, f.persistent.Set(ctx, f.cfg.GetMirrorKeyPrefix()+"main", "mirror-blob"))
	require.NoError(t, f.tab.Set(ctx, f.cfg.GetPendingSessionKey(), "pending-blob"))
	require.NoError(t, f.cookies.Set(ctx, authsync.Cookie{Name: f.cfg.GetMirrorKeyPrefix() + "state", Value: "x"}))
	require.NoError(t, f.cookies.Set(ctx, authsync.Cookie{Name: "unrelated", Value: "y"}))

	f.engine.Start()
	defer f.engine.Close()

	waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading
	})

	f.engine.SignOut()

	snapshot := f.engine.Current()
	assert.False(t, snapshot.IsAuthenticated)
	assert.Nil(t, snapshot.Error)

	_, ok, err := f.persistent.Get(ctx, f.cfg.GetMirrorKeyPrefix()+"main")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = f.tab.Get(ctx, f.cfg.GetPendingSessionKey())
	require.NoError(t, err)
	assert.False(t, ok)

	cookies, err := f.cookies.List(ctx)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "unrelated", cookies[0].Name)

	assert.Equal(t, 1, f.client.resetCount())
	assert.Equal(t, []string{f.cfg.GetSignedOutRoute()}, f.redirectedTo())
}

func TestAuthEngine_SignOutOutlivesInFlightCycle(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}
	f.directory.profileDelay = 400 * time.Millisecond

	f.engine.Start()
	defer f.engine.Close()

	// Wait until the cycle is inside enrichment, then sign out under it.
	require.Eventually(t, func() bool {
		return f.directory.profileCallCount() > 0
	}, 3*time.Second, 10*time.Millisecond)

	f.engine.SignOut()
	terminal := f.engine.Current()
	assert.False(t, terminal.IsAuthenticated)

	// The orphaned cycle completes later; its publish must be dropped.
	time.Sleep(600 * time.Millisecond)
	after := f.engine.Current()
	assert.False(t, after.IsAuthenticated)
	assert.Equal(t, terminal.Version, after.Version)
}

func TestAuthEngine_SignedOutEventOutlivesInFlightCycle(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}
	f.directory.profileDelay = 400 * time.Millisecond

	f.engine.Start()
	defer f.engine.Close()

	require.Eventually(t, func() bool {
		return f.directory.profileCallCount() > 0
	}, 3*time.Second, 10*time.Millisecond)

	f.client.events <- authsync.AuthEvent{Type: authsync.EventSignedOut}

	terminal := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return !s.IsAuthenticated && !s.IsLoading
	})

	time.Sleep(600 * time.Millisecond)
	after := f.engine.Current()
	assert.False(t, after.IsAuthenticated)
	assert.Equal(t, terminal.Version, after.Version)
}

func TestAuthEngine_NewCycleRunsAfterSignOut(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}
	f.directory.profileDelay = 300 * time.Millisecond

	f.engine.Start()
	defer f.engine.Close()

	require.Eventually(t, func() bool {
		return f.directory.profileCallCount() > 0
	}, 3*time.Second, 10*time.Millisecond)

	// Orphaning the running cycle must not wedge the single-flight guard.
	f.engine.SignOut()
	f.client.events <- authsync.AuthEvent{Type: authsync.EventSignedIn, Session: validSession(t, "user-1")}

	snapshot := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading
	})
	assert.Equal(t, "user-1", snapshot.User.ID)
}

func TestAuthEngine_SignOutCompletesDespiteProviderHang(t *testing.T) {
	cfg := testConfig()
	cfg.SignOutTimeout = 100 * time.Millisecond

	f := newEngineFixture(t, cfg)
	f.client.signOutDelay = 5 * time.Second

	f.engine.Start()
	defer f.engine.Close()

	start := time.Now()
	f.engine.SignOut()

	assert.Less(t, time.Since(start), time.Second, "sign-out must not wait out the provider")
	assert.False(t, f.engine.Current().IsAuthenticated)
	assert.Equal(t, []string{f.cfg.GetSignedOutRoute()}, f.redirectedTo())
}

func TestAuthEngine_WatchdogForcesTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ResolveTimeout = 10 * time.Second
	cfg.WatchdogTimeout = 300 * time.Millisecond

	f := newEngineFixture(t, cfg)
	f.client.current = validSession(t, "user-1")
	f.client.currentDelay = 20 * time.Second

	f.engine.Start()
	defer f.engine.Close()

	snapshot := waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return !s.IsAuthenticated && s.Error != nil
	})
	assert.Equal(t, authsync.TextCodeNetworkError, snapshot.Error.TextCode)

	// The watchdog is one-shot.
	time.Sleep(500 * time.Millisecond)
	assert.Len(t, f.sink.byType(authsync.ActivityEventWatchdogFired), 1)
}

func TestAuthEngine_WatchdogSilentAfterCompletion(t *testing.T) {
	cfg := testConfig()
	cfg.WatchdogTimeout = 200 * time.Millisecond

	f := newEngineFixture(t, cfg)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}

	f.engine.Start()
	defer f.engine.Close()

	waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return s.IsAuthenticated && !s.IsLoading
	})

	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, f.sink.byType(authsync.ActivityEventWatchdogFired))
	assert.True(t, f.engine.Current().IsAuthenticated)
}

func TestAuthEngine_SubscribeReceivesReplacements(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.client.current = validSession(t, "user-1")
	f.directory.profile = &authsync.Profile{Email: "user-1@example.com"}

	ch, cancel := f.engine.Subscribe()
	defer cancel()

	f.engine.Start()
	defer f.engine.Close()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case snapshot, ok := <-ch:
			require.True(t, ok)
			if snapshot.IsAuthenticated && !snapshot.IsLoading {
				return
			}
		case <-deadline:
			t.Fatal("never observed an authenticated snapshot")
		}
	}
}

func TestAuthEngine_CloseIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.engine.Start()
	waitForSnapshot(t, f.engine, func(s authsync.AuthSnapshot) bool {
		return !s.IsLoading
	})

	f.engine.Close()
	f.engine.Close()
}
