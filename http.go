package authsync

import (
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteGate gates routes on the engine's published snapshot: authentication,
// minimum role, admin flags, and onboarding state. Consumers read the
// snapshot from locals via SnapshotFromRoute.
type RouteGate struct {
	engine           *AuthEngine
	cfg              Config
	Logger           Logger
	ErrorHandler     func(c router.Context, err error) error
	AuthErrorHandler func(c router.Context, err error) error
}

// NewRouteGate builds a gate over the engine.
func NewRouteGate(engine *AuthEngine, cfg Config) *RouteGate {
	g := &RouteGate{
		engine: engine,
		cfg:    cfg,
		Logger: defLogger{},
	}
	g.ErrorHandler = g.defaultErrHandler
	g.AuthErrorHandler = g.defaultAuthErrHandler
	return g
}

// RequireAuthenticated rejects requests while no authenticated snapshot is
// published. Loading state is rejected too: authorization is never computed
// from a half-loaded state.
func (g *RouteGate) RequireAuthenticated() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snapshot, err := g.usableSnapshot()
			if err != nil {
				return g.AuthErrorHandler(c, err)
			}
			c.Locals(SnapshotLocalsKey, snapshot)
			return next(c)
		}
	}
}

// RequireRole additionally enforces a minimum primary role by the fixed
// priority order.
func (g *RouteGate) RequireRole(minRole Role) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snapshot, err := g.usableSnapshot()
			if err != nil {
				return g.AuthErrorHandler(c, err)
			}
			if !RoleIsAtLeast(snapshot.PrimaryRole, minRole) {
				return g.ErrorHandler(c, errors.New("insufficient role", errors.CategoryAuthz).
					WithCode(errors.CodeForbidden).
					WithMetadata(map[string]any{
						"required": minRole,
						"primary":  snapshot.PrimaryRole,
					}))
			}
			c.Locals(SnapshotLocalsKey, snapshot)
			return next(c)
		}
	}
}

// RequireOrgAdmin gates org administration panels.
func (g *RouteGate) RequireOrgAdmin() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snapshot, err := g.usableSnapshot()
			if err != nil {
				return g.AuthErrorHandler(c, err)
			}
			if !snapshot.IsOrgAdmin {
				return g.ErrorHandler(c, errors.New("organization admin required", errors.CategoryAuthz).
					WithCode(errors.CodeForbidden))
			}
			c.Locals(SnapshotLocalsKey, snapshot)
			return next(c)
		}
	}
}

func (g *RouteGate) usableSnapshot() (AuthSnapshot, error) {
	snapshot := g.engine.Current()
	if snapshot.IsLoading {
		return AuthSnapshot{}, errors.New("authentication still loading", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}
	if !snapshot.IsAuthenticated {
		return AuthSnapshot{}, ErrNoSession
	}
	return snapshot, nil
}

func (g *RouteGate) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	g.Logger.Info("authentication required on %s, redirecting: %s (%s)",
		c.OriginalURL(), richErr.Message, richErr.TextCode)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(g.cfg.GetSignedOutRoute(), statusCode)
}

func (g *RouteGate) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info("route gate error [%s]: %s %s",
		richErr.Category, richErr.Message, print.MaybePrettyJSON(richErr.Metadata))

	return c.JSON(richErr.Code, map[string]any{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	})
}
