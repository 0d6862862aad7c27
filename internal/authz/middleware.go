package authz

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

type contextKey struct{ name string }

var actorContextKey = contextKey{"authz.actor"}

// ActorFromContext returns the actor attached by the middleware.
func ActorFromContext(ctx context.Context) (guard.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(guard.Actor)
	return actor, ok
}

// WithActor attaches an actor to the context. Exported for tests and for
// hosts that authenticate upstream of this middleware.
func WithActor(ctx context.Context, actor guard.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorSource extracts the calling actor from a request. The header source
// below serves service-to-service deployments behind a trusted proxy; hosts
// with their own session layer supply their own implementation.
type ActorSource interface {
	ActorFromRequest(r *http.Request) (guard.Actor, error)
}

// HeaderActorSource resolves the actor from X-Actor-Id and X-Actor-Guard
// headers through the guard registry. A missing guard header falls back to
// the registry default.
type HeaderActorSource struct {
	Registry *guard.Registry
}

func (s HeaderActorSource) ActorFromRequest(r *http.Request) (guard.Actor, error) {
	raw := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	if raw == "" {
		return nil, &shared.UnauthorizedError{}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &shared.UnauthorizedError{}
	}
	guardName := strings.TrimSpace(r.Header.Get("X-Actor-Guard"))
	if guardName == "" {
		guardName = s.Registry.DefaultGuard()
	}
	return s.Registry.Resolve(r.Context(), guard.ActorRef{Guard: guardName, ID: id})
}

// Middleware wires authorization helpers for HTTP handlers. Actions maps
// CRUD verbs (create, read, update, delete) to permission names; ContainerKey
// names the query parameter carrying the container scope.
type Middleware struct {
	Gate         *Gate
	Resolver     *Resolver
	Source       ActorSource
	Actions      map[string]string
	ContainerKey string
	Logger       *slog.Logger
}

// Authenticate resolves the actor once and stores it on the context. Requests
// without a resolvable actor are rejected here so downstream guards can
// assume presence.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.Source.ActorFromRequest(r)
		if err != nil {
			if errors.Is(err, shared.ErrUnauthorized) || errors.Is(err, shared.ErrNotFound) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			m.Logger.Error("resolve actor", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireCRUD guards a route with the permission mapped to action, scoped to
// the given section and the container named in the request. Superusers pass
// unconditionally; an abstaining gate is a deny here because route guards
// have no fallback.
func (m Middleware) RequireCRUD(section, action string) func(http.Handler) http.Handler {
	permission := m.Actions[action]
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if permission == "" {
				m.Logger.Error("unmapped crud action", slog.String("action", action))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			container := strings.TrimSpace(r.URL.Query().Get(m.ContainerKey))
			if container == "" {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing "+m.ContainerKey)
				return
			}
			decision, err := m.Gate.Check(r.Context(), actor, permission, section, container)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if decision != Allow {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole guards a route on role membership, for admin surfaces that are
// role- rather than permission-gated.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			super, err := m.Resolver.IsSuperuser(r.Context(), actor)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if super {
				next.ServeHTTP(w, r)
				return
			}
			refs := roleRefs(roles)
			ok, err = m.Resolver.HasAnyRole(r.Context(), actor, refs, true)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func roleRefs(names []string) []catalog.Ref {
	refs := make([]catalog.Ref, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		refs = append(refs, catalog.ByName(n))
	}
	return refs
}
