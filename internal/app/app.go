package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"go-marketplace/internal/config"
	"go-marketplace/internal/database"
	"go-marketplace/internal/docstore"
	"go-marketplace/internal/event"
	"go-marketplace/internal/handler"
	"go-marketplace/internal/metrics"
	"go-marketplace/internal/middleware"
	"go-marketplace/internal/ratelimit"
	"go-marketplace/internal/repository"
	"go-marketplace/internal/router"
	"go-marketplace/internal/service"
	"go-marketplace/internal/signing"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.Open(context.Background(), database.Options{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	docs, err := docstore.Open(cfg.DocstorePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open docstore: %w", err)
	}

	pool := db.Pool()
	userRepo := repository.NewUserRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	productRepo := repository.NewProductRepository(docs)
	cartRepo := repository.NewCartRepository(docs)

	var keyStore service.SigningKeyStore = repository.NewSigningKeyRepository(pool)
	if cfg.SigningKeyBackend == config.SigningKeyBackendBolt {
		keyStore = repository.NewBoltSigningKeyRepository(docs)
	}
	slog.Info("storage ready", "signing_keys", cfg.SigningKeyBackend, "docstore", cfg.DocstorePath)

	bus := event.NewBus()
	m := metrics.New()

	auditService := service.NewAuditService(auditRepo)
	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	go auditService.Consume(consumeCtx, bus)

	authService := service.NewAuthService(userRepo, resetRepo, service.AuthOptions{
		JWTSecret:  cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
		ResetTTL:   cfg.PasswordResetTTL,
	})
	signingKeyService := service.NewSigningKeyService(keyStore)
	userService := service.NewUserService(userRepo, bus)
	catalogService := service.NewCatalogService(productRepo, bus)
	cartService := service.NewCartService(cartRepo, productRepo)
	orderService := service.NewOrderService(orderRepo, cartRepo, productRepo, bus)

	limiter := ratelimit.New(cfg.RateLimitBuckets, cfg.IsProduction(), nil)
	if !limiter.Enabled() {
		slog.Info("bucket rate limiting disabled outside production", "app_env", cfg.AppEnv)
	}
	buckets := middleware.NewBucketLimiter(limiter, m)
	verifier := signing.NewVerifier(signingKeyService, cfg.SignatureMaxSkew, nil)

	appRouter := router.New(cfg, router.Middlewares{
		Auth:      middleware.NewAuthMiddleware(authService, m, bus),
		Signature: middleware.NewSignatureMiddleware(verifier, cfg.SignatureMaxBody, m, bus),
		Buckets:   buckets,
	}, router.Handlers{
		Auth:    handler.NewAuthHandler(authService, signingKeyService, buckets, cfg.IsProduction()),
		User:    handler.NewUserHandler(userService),
		Product: handler.NewProductHandler(catalogService),
		Cart:    handler.NewCartHandler(cartService),
		Order:   handler.NewOrderHandler(orderService),
		Audit:   handler.NewAuditHandler(auditService),
		Docs:    handler.NewDocsHandler(),
		Health:  db.Health,
	}, m)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go cleanExpiredResets(cleanupCtx, resetRepo, time.Hour)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           otelhttp.NewHandler(appRouter, cfg.ServiceName),
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		cleanupFuncs: []func(){
			cleanupCancel,
			consumeCancel,
			func() {
				if err := docs.Close(); err != nil {
					slog.Error("close docstore", "error", err)
				}
			},
			db.Close,
		},
	}, nil
}

// cleanExpiredResets purges used and expired reset tokens on every tick.
func cleanExpiredResets(ctx context.Context, resets *repository.PasswordResetRepository, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := resets.CleanExpired(ctx)
			if err != nil {
				slog.Warn("clean expired password resets", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("cleaned expired password resets", "removed", removed)
			}
		}
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
