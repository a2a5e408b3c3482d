package authsync

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventCycleStarted   ActivityEventType = "auth.cycle.started"
	ActivityEventCycleCompleted ActivityEventType = "auth.cycle.completed"
	ActivityEventSessionResolve ActivityEventType = "auth.session.resolved"
	ActivityEventSessionAdopted ActivityEventType = "auth.session.adopted"
	ActivityEventAdoptFailed    ActivityEventType = "auth.session.adopt_failed"
	ActivityEventTokenRefreshed ActivityEventType = "auth.token.refreshed"
	ActivityEventSignedOut      ActivityEventType = "auth.signout"
	ActivityEventWatchdogFired  ActivityEventType = "auth.watchdog.timeout"
)

// ActivityEvent captures observability-friendly information about one step of
// the synchronization engine. Metadata carries tagged detail such as
// resolved_from, cycle_duration_ms, and degraded_fields.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Source     ResolvedFrom
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for external log collection. Sinks
// run best-effort; errors are logged and never block the engine.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
