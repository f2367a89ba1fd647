package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-marketplace/internal/event"
	"go-marketplace/internal/guard"
	"go-marketplace/internal/metrics"
	"go-marketplace/internal/model"
	"go-marketplace/internal/ratelimit"
	"go-marketplace/pkg/apierror"
)

// SessionCookie carries the session token.
const SessionCookie = "token"

type identityResolver interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	resolver identityResolver
	metrics  *metrics.Metrics
	bus      event.Bus
}

func NewAuthMiddleware(resolver identityResolver, m *metrics.Metrics, bus event.Bus) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver, metrics: m, bus: bus}
}

// SessionToken reads the session cookie, falling back to a bearer token.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := SessionToken(r)
		if token == "" {
			writeAPIError(w, apierror.Unauthenticated(""))
			return
		}

		identity, err := m.resolver.Authenticate(r.Context(), token)
		if errors.Is(err, model.ErrUnauthorized) {
			writeAPIError(w, apierror.Unauthenticated("invalid or expired session"))
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "resolve identity",
				"request_id", RequestIDFromContext(r.Context()), "error", err)
			writeAPIError(w, apierror.Internal())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (m *AuthMiddleware) RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	return m.guarded(func(r *http.Request, id model.Identity) error {
		return guard.RequireRole(id, roles...)
	})
}

// RequireOwnership admits the caller named by the {param} path segment.
func (m *AuthMiddleware) RequireOwnership(param string) func(http.Handler) http.Handler {
	return m.guarded(func(r *http.Request, id model.Identity) error {
		return guard.VerifyOwnership(id, chi.URLParam(r, param))
	})
}

func (m *AuthMiddleware) RequireApprovedSeller(next http.Handler) http.Handler {
	return m.guarded(func(_ *http.Request, id model.Identity) error {
		return guard.RequireApprovedSeller(id)
	})(next)
}

func (m *AuthMiddleware) guarded(check func(*http.Request, model.Identity) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeAPIError(w, apierror.Unauthenticated(""))
				return
			}

			if err := check(r, identity); err != nil {
				m.deny(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) deny(w http.ResponseWriter, r *http.Request, err error) {
	var denial *guard.Denial
	if !errors.As(err, &denial) {
		writeAPIError(w, apierror.Forbidden(""))
		return
	}

	m.metrics.GuardDenied(denial.Guard, denial.Reason)
	slog.WarnContext(r.Context(), "guard denied",
		"request_id", RequestIDFromContext(r.Context()),
		"guard", denial.Guard,
		"reason", denial.Reason,
		"path", r.URL.Path)

	e := event.New(event.TypeAuthDenied, ActorFromRequest(r), r.Method+" "+r.URL.Path)
	e.Status = event.StatusDenied
	e.Error = denial.Guard + ": " + denial.Reason
	publishEvent(m.bus, e)

	writeAPIError(w, denial.APIError())
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

// WithIdentity attaches identity to ctx the way RequireAuth does.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// ActorFromRequest describes the caller for the audit trail.
func ActorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: ratelimit.ClientIP(r)}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = identity.ID
	actor.Username = identity.Username
	actor.Role = string(identity.Role)

	return actor
}

func publishEvent(bus event.Bus, e event.Event) {
	if bus != nil {
		bus.Publish(e)
	}
}
