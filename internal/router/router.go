package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-marketplace/internal/config"
	"go-marketplace/internal/handler"
	"go-marketplace/internal/metrics"
	"go-marketplace/internal/middleware"
	"go-marketplace/internal/model"
	"go-marketplace/internal/ratelimit"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	User    *handler.UserHandler
	Product *handler.ProductHandler
	Cart    *handler.CartHandler
	Order   *handler.OrderHandler
	Audit   *handler.AuditHandler
	Docs    *handler.DocsHandler
	// Health reports whether backing stores answer. Nil means always healthy.
	Health func(ctx context.Context) error
}

type Middlewares struct {
	Auth      *middleware.AuthMiddleware
	Signature *middleware.SignatureMiddleware
	Buckets   *middleware.BucketLimiter
}

func New(cfg *config.Config, mw Middlewares, h Handlers, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(m))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if h.Health != nil {
			if err := h.Health(req.Context()); err != nil {
				slog.WarnContext(req.Context(), "health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/openapi.yaml", h.Docs.OpenAPI)
	r.Get("/swagger", h.Docs.SwaggerUI)

	requireAuth := mw.Auth.RequireAuth
	signed := mw.Signature.RequireSignature
	owner := mw.Auth.RequireOwnership("username")

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(rateLimitMiddleware.Handler)
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.With(mw.Buckets.Bucket(ratelimit.BucketRegister)).Post("/register", h.Auth.Register)
			auth.With(mw.Buckets.Bucket(ratelimit.BucketLogin)).Post("/login", h.Auth.Login)
			auth.Post("/logout", h.Auth.Logout)
			auth.Post("/forgot-password", h.Auth.ForgotPassword)
			auth.Post("/reset-password", h.Auth.ResetPassword)
			auth.With(requireAuth).Get("/me", h.Auth.Me)
			auth.With(requireAuth).Get("/signing-key", h.Auth.SigningKey)
		})

		api.With(mw.Buckets.Bucket(ratelimit.BucketPublic)).Get("/products", h.Product.List)
		api.With(mw.Buckets.Bucket(ratelimit.BucketPublic)).Get("/products/{id}", h.Product.Get)

		api.Route("/users/{username}", func(user chi.Router) {
			user.Use(requireAuth, signed, owner)
			user.Get("/cart", h.Cart.Get)
			user.Put("/cart", h.Cart.Replace)
			user.Delete("/cart", h.Cart.Clear)
			user.Post("/orders", h.Order.Place)
			user.Get("/orders", h.Order.ListMine)
		})

		api.Route("/sellers/{username}", func(seller chi.Router) {
			seller.Use(requireAuth, signed, mw.Auth.RequireRoles(model.RoleSeller), owner, mw.Auth.RequireApprovedSeller)
			seller.Post("/products", h.Product.Create)
			seller.Put("/products/{id}", h.Product.Update)
			seller.Delete("/products/{id}", h.Product.Delete)
			seller.Get("/orders", h.Order.ListForSeller)
			seller.Put("/orders/{id}/status", h.Order.UpdateStatus)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(requireAuth, signed, mw.Auth.RequireRoles(model.RoleAdmin))
			admin.Get("/users", h.User.List)
			admin.Put("/users/{username}/role", h.User.UpdateRole)
			admin.Get("/sellers/pending", h.User.ListPendingSellers)
			admin.Post("/sellers/{username}/review", h.User.ReviewSeller)
			admin.Get("/audit", h.Audit.List)
		})
	})

	return r
}
