package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-marketplace/internal/config"
	"go-marketplace/internal/docstore"
	"go-marketplace/internal/event"
	"go-marketplace/internal/handler"
	"go-marketplace/internal/metrics"
	"go-marketplace/internal/middleware"
	"go-marketplace/internal/model"
	"go-marketplace/internal/ratelimit"
	"go-marketplace/internal/repository"
	"go-marketplace/internal/service"
	"go-marketplace/internal/signing"
)

const adminPassword = "admin-password"

type testEnv struct {
	handler http.Handler

	mu          sync.Mutex
	resetTokens map[string]string
}

func newTestEnv(t *testing.T, production bool) *testEnv {
	t.Helper()

	docs, err := docstore.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	users := newUserTable(model.User{
		ID:           "00000000-0000-0000-0000-000000000001",
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})

	env := &testEnv{resetTokens: map[string]string{}}
	bus := event.NewBus()
	m := metrics.New()

	products := repository.NewProductRepository(docs)
	carts := repository.NewCartRepository(docs)
	authService := service.NewAuthService(users, &resetTable{resets: map[string]model.PasswordReset{}}, service.AuthOptions{
		JWTSecret:  "router-test-secret",
		BcryptCost: bcrypt.MinCost,
		Notify: func(_ context.Context, user model.User, token string) {
			env.mu.Lock()
			env.resetTokens[user.Email] = token
			env.mu.Unlock()
		},
	})
	keys := service.NewSigningKeyService(repository.NewBoltSigningKeyRepository(docs))

	cfg := &config.Config{
		AppEnv:           config.EnvDevelopment,
		RequestTimeout:   5 * time.Second,
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimitRPM:     10000,
		AuthRateLimitRPM: 10000,
	}
	if production {
		cfg.AppEnv = config.EnvProduction
	}

	buckets := middleware.NewBucketLimiter(ratelimit.New(config.DefaultBuckets(), cfg.IsProduction(), nil), m)
	verifier := signing.NewVerifier(keys, signing.DefaultMaxSkew, nil)

	env.handler = New(cfg, Middlewares{
		Auth:      middleware.NewAuthMiddleware(authService, m, bus),
		Signature: middleware.NewSignatureMiddleware(verifier, 1<<20, m, bus),
		Buckets:   buckets,
	}, Handlers{
		Auth:    handler.NewAuthHandler(authService, keys, buckets, cfg.IsProduction()),
		User:    handler.NewUserHandler(service.NewUserService(users, bus)),
		Product: handler.NewProductHandler(service.NewCatalogService(products, bus)),
		Cart:    handler.NewCartHandler(service.NewCartService(carts, products)),
		Order:   handler.NewOrderHandler(service.NewOrderService(&orderTable{}, carts, products, bus)),
		Audit:   handler.NewAuditHandler(service.NewAuditService(&auditTable{})),
		Docs:    handler.NewDocsHandler(),
	}, m)

	return env
}

type call struct {
	method string
	target string
	body   string
	cookie *http.Cookie
	secret string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(c.method, c.target, strings.NewReader(c.body))
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.secret != "" {
		signing.NewSigner(c.secret, nil).SignRequest(req, []byte(c.body))
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func data(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out, ok := decode(t, rec)["data"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return out
}

func (e *testEnv) register(t *testing.T, username string, role string) {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"password-1","role":%q}`, username, username, role)
	rec := e.do(t, call{method: http.MethodPost, target: "/api/v1/auth/register", body: body})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (e *testEnv) login(t *testing.T, login string, password string) *http.Cookie {
	t.Helper()
	body := fmt.Sprintf(`{"login":%q,"password":%q}`, login, password)
	rec := e.do(t, call{method: http.MethodPost, target: "/api/v1/auth/login", body: body})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.SessionCookie {
			require.True(t, cookie.HttpOnly)
			require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
			return cookie
		}
	}
	t.Fatalf("login did not set the session cookie")
	return nil
}

func (e *testEnv) signingKey(t *testing.T, cookie *http.Cookie) string {
	t.Helper()
	rec := e.do(t, call{method: http.MethodGet, target: "/api/v1/auth/signing-key", cookie: cookie})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	secret, _ := data(t, rec)["signing_key"].(string)
	require.Len(t, secret, 64)
	return secret
}

func TestMarketplaceFlow(t *testing.T) {
	env := newTestEnv(t, false)

	env.register(t, "maker", "seller")
	env.register(t, "buyer", "user")

	seller := env.login(t, "maker", "password-1")
	buyer := env.login(t, "buyer@example.com", "password-1")
	admin := env.login(t, "ROOT", adminPassword)

	sellerKey := env.signingKey(t, seller)
	require.Equal(t, sellerKey, env.signingKey(t, seller), "the signing key is stable")
	buyerKey := env.signingKey(t, buyer)
	adminKey := env.signingKey(t, admin)

	product := `{"name":"Walnut lamp","category":"Home","price_cents":4500,"stock":3}`

	t.Run("unsigned seller request is rejected", func(t *testing.T) {
		rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/sellers/maker/products", body: product, cookie: seller})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid request signature", decode(t, rec)["message"])
	})

	t.Run("pending seller cannot list products", func(t *testing.T) {
		rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/sellers/maker/products", body: product, cookie: seller, secret: sellerKey})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin routes need the admin role", func(t *testing.T) {
		rec := env.do(t, call{method: http.MethodGet, target: "/api/v1/admin/sellers/pending", cookie: buyer, secret: buyerKey})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	rec := env.do(t, call{method: http.MethodGet, target: "/api/v1/admin/sellers/pending", cookie: admin, secret: adminKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pending, _ := data(t, rec)["users"].([]any)
	require.Len(t, pending, 1)

	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/admin/sellers/maker/review", body: `{"decision":"approved"}`, cookie: admin, secret: adminKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/admin/sellers/maker/review", body: `{"decision":"rejected"}`, cookie: admin, secret: adminKey})
	require.Equal(t, http.StatusConflict, rec.Code, "review is terminal")

	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/sellers/maker/products", body: product, cookie: seller, secret: sellerKey})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	productID, _ := data(t, rec)["id"].(string)
	require.NotEmpty(t, productID)

	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/products?category=home"})
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ := data(t, rec)["items"].([]any)
	require.Len(t, items, 1)

	t.Run("another user's cart is forbidden", func(t *testing.T) {
		rec := env.do(t, call{method: http.MethodGet, target: "/api/v1/users/maker/cart", cookie: buyer, secret: buyerKey})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("signature from another identity's key is rejected", func(t *testing.T) {
		rec := env.do(t, call{method: http.MethodGet, target: "/api/v1/users/buyer/cart", cookie: buyer, secret: sellerKey})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	cart := fmt.Sprintf(`{"items":[{"product_id":%q,"quantity":2}]}`, productID)
	rec = env.do(t, call{method: http.MethodPut, target: "/api/v1/users/BUYER/cart", body: cart, cookie: buyer, secret: buyerKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/users/buyer/orders", cookie: buyer, secret: buyerKey})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := data(t, rec)
	require.EqualValues(t, 9000, order["total_cents"])
	orderID, _ := order["id"].(string)

	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/products/" + productID})
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, data(t, rec)["stock"])

	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/sellers/maker/orders", cookie: seller, secret: sellerKey})
	require.Equal(t, http.StatusOK, rec.Code)
	sold, _ := data(t, rec)["items"].([]any)
	require.Len(t, sold, 1)

	target := "/api/v1/sellers/maker/orders/" + orderID + "/status"
	rec = env.do(t, call{method: http.MethodPut, target: target, body: `{"status":"shipped"}`, cookie: seller, secret: sellerKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, call{method: http.MethodPut, target: target, body: `{"status":"cancelled"}`, cookie: seller, secret: sellerKey})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSellerCannotChangeAnotherSellersLines(t *testing.T) {
	env := newTestEnv(t, false)
	admin := env.login(t, "root", adminPassword)
	adminKey := env.signingKey(t, admin)

	type shop struct {
		cookie  *http.Cookie
		key     string
		product string
	}
	shops := map[string]*shop{}
	for _, name := range []string{"maker", "weaver"} {
		env.register(t, name, "seller")
		rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/admin/sellers/" + name + "/review", body: `{"decision":"approved"}`, cookie: admin, secret: adminKey})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		s := &shop{cookie: env.login(t, name, "password-1")}
		s.key = env.signingKey(t, s.cookie)
		body := fmt.Sprintf(`{"name":"%s goods","price_cents":1000,"stock":5}`, name)
		rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/sellers/" + name + "/products", body: body, cookie: s.cookie, secret: s.key})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		s.product, _ = data(t, rec)["id"].(string)
		shops[name] = s
	}

	env.register(t, "buyer", "user")
	buyer := env.login(t, "buyer", "password-1")
	buyerKey := env.signingKey(t, buyer)
	cart := fmt.Sprintf(`{"items":[{"product_id":%q,"quantity":2},{"product_id":%q,"quantity":1}]}`, shops["maker"].product, shops["weaver"].product)
	rec := env.do(t, call{method: http.MethodPut, target: "/api/v1/users/buyer/cart", body: cart, cookie: buyer, secret: buyerKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/users/buyer/orders", cookie: buyer, secret: buyerKey})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID, _ := data(t, rec)["id"].(string)

	maker := shops["maker"]
	rec = env.do(t, call{method: http.MethodPut, target: "/api/v1/sellers/maker/orders/" + orderID + "/status", body: `{"status":"cancelled"}`, cookie: maker.cookie, secret: maker.key})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "cancelled", data(t, rec)["status"])

	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/products/" + maker.product})
	require.EqualValues(t, 5, data(t, rec)["stock"], "cancelled lines are restocked")

	weaver := shops["weaver"]
	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/sellers/weaver/orders", cookie: weaver.cookie, secret: weaver.key})
	require.Equal(t, http.StatusOK, rec.Code)
	sold, _ := data(t, rec)["items"].([]any)
	require.Len(t, sold, 1)
	require.Equal(t, "placed", sold[0].(map[string]any)["status"])

	rec = env.do(t, call{method: http.MethodPut, target: "/api/v1/sellers/weaver/orders/" + orderID + "/status", body: `{"status":"shipped"}`, cookie: weaver.cookie, secret: weaver.key})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/products/" + weaver.product})
	require.EqualValues(t, 4, data(t, rec)["stock"])

	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/users/buyer/orders", cookie: buyer, secret: buyerKey})
	require.Equal(t, http.StatusOK, rec.Code)
	mine, _ := data(t, rec)["items"].([]any)
	require.Len(t, mine, 1)
	require.Equal(t, "shipped", mine[0].(map[string]any)["status"])
}

func TestTamperedBodyIsRejected(t *testing.T) {
	env := newTestEnv(t, false)
	env.register(t, "buyer", "user")
	buyer := env.login(t, "buyer", "password-1")
	key := env.signingKey(t, buyer)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/buyer/cart", strings.NewReader(`{"items":[]}`))
	req.AddCookie(buyer)
	signing.NewSigner(key, nil).SignRequest(req, []byte(`{"items":[{"product_id":"x","quantity":1}]}`))

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/logout"})
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, middleware.SessionCookie, cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, false)
	env.register(t, "buyer", "user")
	old := env.login(t, "buyer", "password-1")

	rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/forgot-password", body: `{"email":"nobody@example.com"}`})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/forgot-password", body: `{"email":"buyer@example.com"}`})
	require.Equal(t, http.StatusAccepted, rec.Code)

	env.mu.Lock()
	token := env.resetTokens["buyer@example.com"]
	env.mu.Unlock()
	require.NotEmpty(t, token)

	body := fmt.Sprintf(`{"token":%q,"password":"password-2"}`, token)
	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/reset-password", body: body})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/reset-password", body: body})
	require.Equal(t, http.StatusBadRequest, rec.Code, "tokens are single use")

	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/auth/me", cookie: old})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	fresh := env.login(t, "buyer", "password-2")
	rec = env.do(t, call{method: http.MethodGet, target: "/api/v1/auth/me", cookie: fresh})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBucketsOnlyApplyInProduction(t *testing.T) {
	wrongLogin := `{"login":"root","password":"nope-nope"}`

	t.Run("development", func(t *testing.T) {
		env := newTestEnv(t, false)
		for i := 0; i < 10; i++ {
			rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/login", body: wrongLogin})
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}
	})

	t.Run("production", func(t *testing.T) {
		env := newTestEnv(t, true)
		for i := 0; i < 5; i++ {
			rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/login", body: wrongLogin})
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}

		rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/login", body: wrongLogin})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))

		body := decode(t, rec)
		require.NotEmpty(t, body["message"])
		require.Greater(t, body["resetTime"], float64(time.Now().UnixMilli()))
	})

	t.Run("forgot password is keyed by email", func(t *testing.T) {
		env := newTestEnv(t, true)
		for i := 0; i < 3; i++ {
			rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/forgot-password", body: `{"email":"a@example.com"}`})
			require.Equal(t, http.StatusAccepted, rec.Code)
		}

		rec := env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/forgot-password", body: `{"email":"A@example.com"}`})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = env.do(t, call{method: http.MethodPost, target: "/api/v1/auth/forgot-password", body: `{"email":"b@example.com"}`})
		require.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, call{method: http.MethodGet, target: "/health"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, call{method: http.MethodGet, target: "/openapi.yaml"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/v1/auth/signing-key")

	env.do(t, call{method: http.MethodGet, target: "/api/v1/products"})
	rec = env.do(t, call{method: http.MethodGet, target: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "marketplace_")
}
