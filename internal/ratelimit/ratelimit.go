// Package ratelimit implements named fixed-window request buckets.
//
// Counters are process-local; a deployment with several replicas limits each
// replica independently.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go-marketplace/internal/config"
)

const (
	BucketLogin         = "login"
	BucketRegister      = "register"
	BucketResetPassword = "resetPassword"
	BucketPublic        = "public"

	sweepInterval = time.Minute
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// ResetTimeMillis is the epoch millisecond at which the window reopens.
func (d *Decision) ResetTimeMillis() int64 {
	return d.ResetTime.UnixMilli()
}

type window struct {
	count   int
	resetAt time.Time
}

type Limiter struct {
	enabled bool
	buckets map[string]config.BucketConfig
	nowFn   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

// New builds a limiter over the given buckets. A disabled limiter answers every
// Check with nil.
func New(buckets []config.BucketConfig, enabled bool, nowFn func() time.Time) *Limiter {
	if nowFn == nil {
		nowFn = time.Now
	}
	byName := make(map[string]config.BucketConfig, len(buckets))
	for _, b := range buckets {
		byName[b.Name] = b
	}
	return &Limiter{
		enabled: enabled,
		buckets: byName,
		nowFn:   nowFn,
		windows: map[string]*window{},
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *Limiter) HasBucket(name string) bool {
	_, ok := l.buckets[name]
	return ok
}

// Check counts one request against bucket. The client is identified by key when
// it is non-empty, otherwise by the request's client IP. It returns nil when
// limiting is disabled or the bucket is unknown.
func (l *Limiter) Check(r *http.Request, bucket string, key string) *Decision {
	if !l.Enabled() {
		return nil
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = ClientIP(r)
	}
	return l.Take(bucket, key)
}

// Take counts one hit for clientKey in bucket.
func (l *Limiter) Take(bucket string, clientKey string) *Decision {
	if !l.Enabled() {
		return nil
	}
	cfg, ok := l.buckets[bucket]
	if !ok {
		return nil
	}

	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	id := bucket + "|" + clientKey
	w, ok := l.windows[id]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(cfg.Window)}
		l.windows[id] = w
	}

	if w.count >= cfg.Limit {
		return &Decision{Allowed: false, Remaining: 0, ResetTime: w.resetAt}
	}
	w.count++
	return &Decision{Allowed: true, Remaining: cfg.Limit - w.count, ResetTime: w.resetAt}
}

func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
		}
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func ClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
