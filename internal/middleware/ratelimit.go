package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-marketplace/internal/metrics"
	"go-marketplace/internal/ratelimit"
	"go-marketplace/pkg/apierror"
)

const (
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

type clientLimiter struct {
	general  *rate.Limiter
	auth     *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware is the coarse per-IP token bucket in front of the API.
type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int
	mu         sync.Mutex
	clients    map[string]*clientLimiter
}

func NewRateLimitMiddleware(generalRPM int, authRPM int) *RateLimitMiddleware {
	if generalRPM <= 0 {
		generalRPM = 100
	}
	if authRPM <= 0 {
		authRPM = 10
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		clients:    map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := m.getLimiter(ratelimit.ClientIP(r))

		target := limiter.general
		if strings.HasPrefix(strings.ToLower(r.URL.Path), "/api/v1/auth") {
			target = limiter.auth
		}

		if !target.Allow() {
			w.Header().Set("Retry-After", "60")
			writeAPIError(w, apierror.RateLimited(time.Now().Add(time.Minute).UnixMilli()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter
	}

	general := rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.generalRPM)), m.generalRPM)
	auth := rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.authRPM)), m.authRPM)
	created := &clientLimiter{general: general, auth: auth, lastSeen: time.Now()}
	m.clients[clientIP] = created
	m.gcLocked()

	return created
}

func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

// BucketLimiter applies named fixed-window buckets to routes.
type BucketLimiter struct {
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	nowFn   func() time.Time
}

func NewBucketLimiter(limiter *ratelimit.Limiter, m *metrics.Metrics) *BucketLimiter {
	return &BucketLimiter{limiter: limiter, metrics: m, nowFn: time.Now}
}

// Bucket limits a route by client IP.
func (b *BucketLimiter) Bucket(name string) func(http.Handler) http.Handler {
	if !b.limiter.HasBucket(name) {
		slog.Warn("rate limit bucket not configured", "bucket", name)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !b.Allow(w, r, name, "") {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allow counts the request against bucket, keyed by key or the client IP. When
// the bucket is exhausted it writes the 429 response and returns false.
func (b *BucketLimiter) Allow(w http.ResponseWriter, r *http.Request, bucket string, key string) bool {
	decision := b.limiter.Check(r, bucket, key)
	if decision == nil {
		return true
	}

	reset := decision.ResetTimeMillis()
	w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
	w.Header().Set(headerRateLimitReset, strconv.FormatInt(reset, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := int(math.Ceil(decision.ResetTime.Sub(b.nowFn()).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	b.metrics.RateLimited(bucket)
	slog.WarnContext(r.Context(), "rate limited",
		"request_id", RequestIDFromContext(r.Context()),
		"bucket", bucket,
		"client_ip", ratelimit.ClientIP(r))

	writeAPIError(w, apierror.RateLimited(reset))
	return false
}
