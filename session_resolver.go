package authsync

import (
	"context"
	"sort"
	"strings"
	"time"
)

// SessionResolver obtains a currently valid session by trying an ordered list
// of sources with short-circuit semantics. It never propagates a hang from
// the provider's authoritative accessor; the last source is raced against a
// fixed timeout and a lost race means "no session".
type SessionResolver struct {
	client     IdentityClient
	persistent KeyValueStore
	tab        KeyValueStore
	validator  *TokenValidator
	cfg        Config
	logger     Logger
	sink       ActivitySink
}

// ResolverOption customizes resolver construction.
type ResolverOption func(*SessionResolver)

// WithResolverLogger overrides the logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *SessionResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverActivitySink sets the sink receiving resolution events.
func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *SessionResolver) {
		r.sink = normalizeActivitySink(sink)
	}
}

// WithResolverTokenValidator overrides the expiry validator.
func WithResolverTokenValidator(validator *TokenValidator) ResolverOption {
	return func(r *SessionResolver) {
		if validator != nil {
			r.validator = validator
		}
	}
}

// NewSessionResolver wires the resolver to the identity client, the
// persistent mirror tier, and the tab-scoped handoff tier.
func NewSessionResolver(client IdentityClient, persistent, tab KeyValueStore, cfg Config, opts ...ResolverOption) *SessionResolver {
	r := &SessionResolver{
		client:     client,
		persistent: persistent,
		tab:        tab,
		validator:  NewTokenValidator(WithExpiryBuffer(cfg.GetTokenGraceBuffer())),
		cfg:        cfg,
		logger:     defLogger{},
		sink:       noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

type sessionAttempt struct {
	source ResolvedFrom
	run    func(ctx context.Context) *Session
}

// Resolve returns the first valid, unexpired session from the ordered source
// chain, or nil when every source is exhausted. A nil result with a nil error
// is a clean "no session", not a failure.
func (r *SessionResolver) Resolve(ctx context.Context, provided *Session) (*Session, ResolvedFrom, error) {
	attempts := []sessionAttempt{
		{SourceProvided, func(ctx context.Context) *Session { return r.fromProvided(provided) }},
		{SourcePending, r.fromPendingHandoff},
		{SourceMirror, r.fromMirror},
		{SourceAuthoritative, r.fromAuthoritative},
	}

	for _, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, "", ErrNetwork.WithMetadata(map[string]any{
				"reason": err.Error(),
			})
		}

		session := attempt.run(ctx)
		if session == nil {
			continue
		}

		r.logger.Debug("session resolved from %s for user %s", attempt.source, session.User.ID)
		r.recordResolution(ctx, session, attempt.source)

		// Storage recoveries leave the provider unaware of the session it
		// should be holding; adopt it back without delaying the caller.
		if attempt.source == SourcePending || attempt.source == SourceMirror {
			r.adoptAsync(session)
		}

		return session, attempt.source, nil
	}

	return nil, "", nil
}

// fromProvided is the fast, authoritative path: a session handed over by an
// identity event skips every other source.
func (r *SessionResolver) fromProvided(provided *Session) *Session {
	if provided == nil {
		return nil
	}
	if r.validator.IsExpired(provided.AccessToken) {
		r.logger.Warn("provided session for user %s is expired, falling through", provided.User.ID)
		return nil
	}
	return provided
}

// fromPendingHandoff checks the short-lived record written right after
// interactive sign-in. Expired records are discarded on sight.
func (r *SessionResolver) fromPendingHandoff(ctx context.Context) *Session {
	key := r.cfg.GetPendingSessionKey()
	blob, ok, err := r.tab.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}

	session, err := decodeStoredSession(blob)
	if err != nil {
		r.logger.Debug("ignoring malformed pending handoff record")
		return nil
	}

	if r.validator.IsExpired(session.AccessToken) {
		if err := r.tab.Delete(ctx, key); err != nil {
			r.logger.Warn("failed to discard expired handoff record: %v", err)
		}
		return nil
	}

	return session
}

// fromMirror scans the persistent tier for the provider's own persisted
// record. Keys are matched by the provider-specific prefix; malformed entries
// are treated as absent.
func (r *SessionResolver) fromMirror(ctx context.Context) *Session {
	keys, err := r.persistent.Keys(ctx)
	if err != nil {
		r.logger.Warn("mirror key scan failed: %v", err)
		return nil
	}

	prefix := r.cfg.GetMirrorKeyPrefix()
	var candidates []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			candidates = append(candidates, key)
		}
	}
	sort.Strings(candidates)

	for _, key := range candidates {
		blob, ok, err := r.persistent.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		session, err := decodeStoredSession(blob)
		if err != nil {
			r.logger.Debug("ignoring malformed mirror record at %s", key)
			continue
		}
		if r.validator.IsExpired(session.AccessToken) {
			continue
		}
		return session
	}

	return nil
}

// fromAuthoritative races the provider's session accessor against the
// resolve timeout. The accessor can hang indefinitely; a lost race is treated
// as "no session" rather than propagating the hang.
func (r *SessionResolver) fromAuthoritative(ctx context.Context) *Session {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.GetResolveTimeout())
	defer cancel()

	type result struct {
		session *Session
		err     error
	}

	// Buffered so the goroutine can complete after the race is lost.
	ch := make(chan result, 1)
	go func() {
		session, err := r.client.CurrentSession(cctx)
		ch <- result{session, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			r.logger.Warn("authoritative session accessor failed: %v", res.err)
			return nil
		}
		if res.session == nil {
			return nil
		}
		if r.validator.IsExpired(res.session.AccessToken) {
			return nil
		}
		return res.session
	case <-cctx.Done():
		r.logger.Warn("authoritative session accessor timed out after %s",
			r.cfg.GetResolveTimeout())
		return nil
	}
}

// adoptAsync asks the provider to adopt a storage-recovered session so its
// internal state converges. Best-effort: failures are logged and recorded but
// never surfaced, and the call never delays the resolution result.
func (r *SessionResolver) adoptAsync(session *Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.GetResolveTimeout())
		defer cancel()

		if err := r.client.AdoptSession(ctx, session); err != nil {
			r.logger.Warn("session adoption failed for user %s: %v", session.User.ID, err)
			r.recordEvent(ctx, ActivityEvent{
				EventType: ActivityEventAdoptFailed,
				UserID:    session.User.ID,
				Metadata:  map[string]any{"error": err.Error()},
			})
			return
		}

		r.recordEvent(ctx, ActivityEvent{
			EventType: ActivityEventSessionAdopted,
			UserID:    session.User.ID,
		})
	}()
}

func (r *SessionResolver) recordResolution(ctx context.Context, session *Session, source ResolvedFrom) {
	r.recordEvent(ctx, ActivityEvent{
		EventType: ActivityEventSessionResolve,
		UserID:    session.User.ID,
		Source:    source,
		Metadata:  map[string]any{"resolved_from": string(source)},
	})
}

func (r *SessionResolver) recordEvent(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	sink := normalizeActivitySink(r.sink)
	if err := sink.Record(ctx, event); err != nil {
		r.logger.Warn("resolver activity sink error: %v", err)
	}
}
