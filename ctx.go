package authsync

import (
	"context"

	"github.com/goliatone/go-router"
)

var snapshotCtxKey = &contextKey{"snapshot"}

type contextKey struct {
	name string
}

// SnapshotLocalsKey is where the route gate stores the snapshot on the
// request context.
const SnapshotLocalsKey = "auth_snapshot"

// WithSnapshotContext sets the AuthSnapshot in the given context
func WithSnapshotContext(ctx context.Context, snapshot AuthSnapshot) context.Context {
	return context.WithValue(ctx, snapshotCtxKey, snapshot)
}

// SnapshotFromContext finds the snapshot from the context.
func SnapshotFromContext(ctx context.Context) (AuthSnapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(AuthSnapshot)
	return raw, ok
}

// SnapshotFromRoute extracts the snapshot stored by the route gate.
func SnapshotFromRoute(ctx router.Context) (AuthSnapshot, bool) {
	raw := ctx.Locals(SnapshotLocalsKey)
	if raw == nil {
		return AuthSnapshot{}, false
	}
	snapshot, ok := raw.(AuthSnapshot)
	return snapshot, ok
}

// CanAccess is a convenience check for role-gated decisions from the
// standard context.
func CanAccess(ctx context.Context, minRole Role) bool {
	snapshot, ok := SnapshotFromContext(ctx)
	if !ok || !snapshot.IsAuthenticated {
		return false
	}
	return RoleIsAtLeast(snapshot.PrimaryRole, minRole)
}
