package authsync

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// Phase is the engine's lifecycle state.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseLoading         Phase = "loading"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseErrored         Phase = "errored"
)

// subscriberBuffer bounds each subscriber channel; slow consumers drop
// intermediate snapshots and catch up via Current.
const subscriberBuffer = 8

// AuthEngine orchestrates session resolution and enrichment into a coherent,
// versioned AuthSnapshot. It owns the single-flight guard so only one
// resolve+enrich cycle's effects are ever published at a time, subscribes to
// identity lifecycle events, and exposes the two public actions RefreshAuth
// and SignOut.
type AuthEngine struct {
	client      IdentityClient
	resolver    *SessionResolver
	enricher    *EnrichmentFetcher
	cleaner     *CleanupCoordinator
	cfg         Config
	logger      Logger
	sink        ActivitySink
	now         func() time.Time
	redirect    func(route string)
	phoneRegion string

	mu        sync.Mutex
	phase     Phase
	snapshot  AuthSnapshot
	version   uint64
	epoch     uint64
	inFlight  bool
	closed    bool
	subs      map[int]chan AuthSnapshot
	nextSubID int

	watchdog *SafetyWatchdog
	rootCtx  context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// EngineOption customizes engine construction.
type EngineOption func(*AuthEngine)

// WithEngineLogger overrides the logger used by the engine and every
// component it constructs.
func WithEngineLogger(logger Logger) EngineOption {
	return func(e *AuthEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEngineActivitySink sets the sink receiving engine and resolver events.
func WithEngineActivitySink(sink ActivitySink) EngineOption {
	return func(e *AuthEngine) {
		e.sink = normalizeActivitySink(sink)
	}
}

// WithEngineClock injects a custom clock (useful for tests).
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *AuthEngine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithRedirect sets the hard-navigation callback invoked after SignOut.
func WithRedirect(redirect func(route string)) EngineOption {
	return func(e *AuthEngine) {
		e.redirect = redirect
	}
}

// WithPhoneRegionOption forwards the default phone region to the enrichment
// fetcher.
func WithPhoneRegionOption(region string) EngineOption {
	return func(e *AuthEngine) {
		if region != "" {
			e.phoneRegion = region
		}
	}
}

// NewAuthEngine builds the engine and its collaborators once per application
// root. Lifecycle is explicit: Start subscribes to identity events and arms
// the watchdog, Close tears both down.
func NewAuthEngine(client IdentityClient, directory DirectoryClient, persistent, tab KeyValueStore, cookies CookieStore, cfg Config, opts ...EngineOption) *AuthEngine {
	e := &AuthEngine{
		client:      client,
		cfg:         cfg,
		logger:      defLogger{},
		sink:        noopActivitySink{},
		now:         time.Now,
		phase:       PhaseIdle,
		snapshot:    AuthSnapshot{IsLoading: true},
		subs:        map[int]chan AuthSnapshot{},
		loopDone:    make(chan struct{}),
		phoneRegion: "US",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.resolver = NewSessionResolver(client, persistent, tab, cfg,
		WithResolverLogger(e.logger),
		WithResolverActivitySink(e.sink),
	)
	e.enricher = NewEnrichmentFetcher(directory, cfg,
		WithEnrichmentLogger(e.logger),
		WithPhoneRegion(e.phoneRegion),
	)
	e.cleaner = NewCleanupCoordinator(client, persistent, tab, cookies, cfg, e.logger)
	e.rootCtx, e.cancel = context.WithCancel(context.Background())

	return e
}

// Start arms the watchdog, begins consuming identity events, and kicks the
// initial resolution cycle.
func (e *AuthEngine) Start() {
	e.watchdog = newSafetyWatchdog(e.cfg.GetWatchdogTimeout(), e.onWatchdogTimeout)

	go e.eventLoop()
	go e.runCycle(nil, string(EventInitialSession))
}

// Close stops the event loop, disarms the watchdog, and marks the engine so
// late async completions never publish to a disposed consumer.
func (e *AuthEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()

	e.cancel()
	if e.watchdog != nil {
		e.watchdog.Stop()
	}
	<-e.loopDone
}

// Current returns the latest published snapshot.
func (e *AuthEngine) Current() AuthSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Subscribe registers a listener for snapshot replacements. The returned
// cancel function unregisters it. Slow listeners miss intermediate snapshots
// rather than blocking the engine.
func (e *AuthEngine) Subscribe() (<-chan AuthSnapshot, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan AuthSnapshot, subscriberBuffer)
	if e.closed {
		close(ch)
		return ch, func() {}
	}

	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if existing, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// RefreshAuth orphans any running cycle and forces a fresh resolve+enrich
// cycle even if one already ran. Fire-and-forget.
func (e *AuthEngine) RefreshAuth() {
	e.invalidateCycles()

	go e.runCycle(nil, "refresh")
}

// invalidateCycles bumps the cycle epoch, orphaning any cycle still running
// under the previous one: its publishes become no-ops and its completion no
// longer releases the single-flight guard.
func (e *AuthEngine) invalidateCycles() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	e.inFlight = false
}

// SignOut performs a best-effort provider sign-out bounded by a short
// timeout, purges every storage mirror, publishes the terminal snapshot, and
// invokes the redirect callback. Any in-flight cycle is orphaned first so a
// late completion can never overwrite the terminal state.
func (e *AuthEngine) SignOut() {
	e.invalidateCycles()
	e.providerSignOut()

	e.cleaner.Purge(context.Background())

	e.publishTerminal(nil)
	e.recordEvent(ActivityEvent{EventType: ActivityEventSignedOut})

	if e.redirect != nil {
		e.redirect(e.cfg.GetSignedOutRoute())
	}
}

// providerSignOut races the provider call against the sign-out timeout;
// failure or timeout is logged and ignored.
func (e *AuthEngine) providerSignOut() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.GetSignOutTimeout())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.client.SignOut(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			e.logger.Warn("provider sign-out failed: %v", err)
		}
	case <-ctx.Done():
		e.logger.Warn("provider sign-out timed out after %s", e.cfg.GetSignOutTimeout())
	}
}

// eventLoop consumes the identity provider's event channel until Close.
func (e *AuthEngine) eventLoop() {
	defer close(e.loopDone)

	events := e.client.Events()
	for {
		select {
		case <-e.rootCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		}
	}
}

func (e *AuthEngine) handleEvent(ev AuthEvent) {
	switch ev.Type {
	case EventSignedOut:
		// Terminal immediately; the in-flight cycle, if any, is orphaned so
		// it cannot resurrect the session.
		e.invalidateCycles()
		e.publishTerminal(nil)
	case EventTokenRefreshed:
		e.swapSession(ev.Session)
	case EventSignedIn, EventInitialSession:
		go e.runCycle(ev.Session, string(ev.Type))
	default:
		e.logger.Debug("ignoring unknown identity event %q", ev.Type)
	}
}

// swapSession replaces only the session/user fields of the current snapshot.
// A token refresh does not change identity or authorization data, so
// enrichment is deliberately not re-run.
func (e *AuthEngine) swapSession(session *Session) {
	if session == nil {
		return
	}

	e.mu.Lock()
	if e.closed || !e.snapshot.IsAuthenticated {
		e.mu.Unlock()
		return
	}

	next := e.snapshot
	next.Session = session
	user := session.User
	next.User = &user
	e.replaceLocked(next, PhaseAuthenticated)
	e.mu.Unlock()

	e.recordEvent(ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		UserID:    session.User.ID,
	})
}

// runCycle is the single resolve+enrich pipeline. The guard makes concurrent
// invocations no-ops; only RefreshAuth may supersede a running cycle.
func (e *AuthEngine) runCycle(provided *Session, trigger string) {
	epoch, ok := e.beginCycle()
	if !ok {
		e.logger.Debug("cycle already in flight, skipping trigger %q", trigger)
		return
	}
	defer e.endCycle(epoch)

	started := e.now()
	e.markLoading(epoch)
	e.recordEvent(ActivityEvent{
		EventType: ActivityEventCycleStarted,
		Metadata:  map[string]any{"trigger": trigger},
	})

	session, source, err := e.resolver.Resolve(e.rootCtx, provided)
	if err != nil {
		e.publishTerminalFor(epoch, asRichError(err))
		return
	}
	if session == nil {
		// Clean "no session": unauthenticated with no error.
		e.publishTerminalFor(epoch, nil)
		e.recordCycleDone(started, "", nil)
		return
	}

	enrichment := e.enricher.Enrich(e.rootCtx, session)
	e.publish(e.composeAuthenticated(session, enrichment), epoch)
	e.recordCycleDone(started, source, enrichment.Degraded)
}

func (e *AuthEngine) composeAuthenticated(session *Session, enrichment *Enrichment) AuthSnapshot {
	derived := ComputeDerivedState(enrichment.Roles)
	user := session.User

	return AuthSnapshot{
		IsAuthenticated: true,
		Error:           enrichment.ProfileError,
		User:            &user,
		Session:         session,
		Profile:         enrichment.Profile,
		Organization:    enrichment.Organization,
		Roles:           enrichment.Roles,
		PrimaryRole:     derived.PrimaryRole,
		Departments:     enrichment.Departments,
		IsOrgAdmin:      derived.IsOrgAdmin,
		IsSuperAdmin:    derived.IsSuperAdmin,
		NeedsOnboarding: NeedsOnboarding(enrichment.Profile, derived.IsSuperAdmin),
	}
}

// beginCycle claims the single-flight guard and returns the epoch the cycle
// runs under. Every publish from the cycle is checked against that epoch, so
// a sign-out or refresh that bumps it silently retires the cycle.
func (e *AuthEngine) beginCycle() (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight || e.closed {
		return 0, false
	}
	e.inFlight = true
	return e.epoch, true
}

func (e *AuthEngine) endCycle(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// An orphaned cycle must not release the guard a successor now holds.
	if epoch != e.epoch {
		return
	}
	e.inFlight = false
}

// markLoading republishes the current snapshot with the loading flag set,
// preserving existing identity fields so consumers can keep rendering them.
func (e *AuthEngine) markLoading(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || epoch != e.epoch {
		return
	}
	next := e.snapshot
	next.IsLoading = true
	e.replaceLocked(next, PhaseLoading)
}

// publish replaces the snapshot with an authenticated (or degraded) result,
// unless the cycle that produced it has been orphaned.
func (e *AuthEngine) publish(snapshot AuthSnapshot, epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || epoch != e.epoch {
		return
	}

	phase := PhaseAuthenticated
	if !snapshot.IsAuthenticated {
		phase = PhaseUnauthenticated
		if snapshot.Error != nil {
			phase = PhaseErrored
		}
	}
	e.replaceLocked(snapshot, phase)
	e.disarmWatchdogLocked()
}

// publishTerminal publishes the terminal unauthenticated snapshot: no
// session, empty roles, no profile, no organization. Authoritative callers
// (SignOut, SIGNED_OUT, watchdog) use it unconditionally.
func (e *AuthEngine) publishTerminal(cause *errors.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishTerminalLocked(cause)
}

// publishTerminalFor is the cycle-scoped variant: a terminal result from an
// orphaned cycle is dropped.
func (e *AuthEngine) publishTerminalFor(epoch uint64, cause *errors.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return
	}
	e.publishTerminalLocked(cause)
}

func (e *AuthEngine) publishTerminalLocked(cause *errors.Error) {
	if e.closed {
		return
	}

	phase := PhaseUnauthenticated
	if cause != nil {
		phase = PhaseErrored
	}
	e.replaceLocked(AuthSnapshot{
		IsAuthenticated: false,
		Error:           cause,
		Roles:           []Role{},
		Departments:     []string{},
	}, phase)
	e.disarmWatchdogLocked()
}

// replaceLocked swaps the snapshot wholesale and fans out to subscribers.
// Callers hold e.mu.
func (e *AuthEngine) replaceLocked(snapshot AuthSnapshot, phase Phase) {
	e.version++
	snapshot.Version = e.version
	e.snapshot = snapshot
	e.phase = phase

	for _, ch := range e.subs {
		select {
		case ch <- snapshot:
		default:
			// Subscriber is behind; it will observe the latest via Current.
		}
	}
}

func (e *AuthEngine) disarmWatchdogLocked() {
	if e.phase == PhaseLoading || e.phase == PhaseIdle {
		return
	}
	if e.watchdog != nil {
		e.watchdog.Stop()
	}
}

// onWatchdogTimeout converts "stuck loading forever" into a terminal timeout
// error. The watchdog fires at most once and never after a legitimate
// completion.
func (e *AuthEngine) onWatchdogTimeout() {
	e.mu.Lock()
	stuck := e.phase == PhaseLoading || e.phase == PhaseIdle
	e.mu.Unlock()

	if !stuck {
		return
	}

	e.logger.Error("no resolution completed within %s, forcing unauthenticated", e.cfg.GetWatchdogTimeout())
	e.publishTerminal(ErrLoadTimeout)
	e.recordEvent(ActivityEvent{
		EventType: ActivityEventWatchdogFired,
		Metadata:  map[string]any{"timeout_ms": e.cfg.GetWatchdogTimeout().Milliseconds()},
	})
}

func (e *AuthEngine) recordCycleDone(started time.Time, source ResolvedFrom, degraded []string) {
	metadata := map[string]any{
		"cycle_duration_ms": e.now().Sub(started).Milliseconds(),
	}
	if source != "" {
		metadata["resolved_from"] = string(source)
	}
	if len(degraded) > 0 {
		metadata["degraded_fields"] = degraded
	}
	e.recordEvent(ActivityEvent{
		EventType: ActivityEventCycleCompleted,
		Source:    source,
		Metadata:  metadata,
	})
}

func (e *AuthEngine) recordEvent(event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	sink := normalizeActivitySink(e.sink)
	if err := sink.Record(e.rootCtx, event); err != nil {
		e.logger.Warn("engine activity sink error: %v", err)
	}
}

// asRichError normalizes arbitrary failures into the taxonomy, preserving
// diagnostic detail.
func asRichError(err error) *errors.Error {
	if err == nil {
		return nil
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich
	}
	return errors.Wrap(err, ErrUnknown.Category, ErrUnknown.Message).
		WithTextCode(ErrUnknown.TextCode).
		WithCode(errors.CodeInternal)
}
