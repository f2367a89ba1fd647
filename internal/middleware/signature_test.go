package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-marketplace/internal/metrics"
	"go-marketplace/internal/model"
	"go-marketplace/internal/signing"
)

type secretLookup map[string]string

func (s secretLookup) GetSigningKey(_ context.Context, identityID string) (string, error) {
	if identityID == "explode" {
		return "", errors.New("store unavailable")
	}
	secret, ok := s[identityID]
	if !ok {
		return "", model.ErrSigningKeyNotFound
	}
	return secret, nil
}

func signatureFixture(maxBody int64) (http.Handler, *[]byte) {
	verifier := signing.NewVerifier(secretLookup{"u1": "alice-secret"}, 5*time.Minute, nil)
	mw := NewSignatureMiddleware(verifier, maxBody, metrics.New(), nil)

	var received []byte
	handler := mw.RequireSignature(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &received
}

func signedRequest(identityID string, secret string, method string, target string, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	signing.NewSigner(secret, nil).SignRequest(req, []byte(body))
	return req.WithContext(WithIdentity(req.Context(), model.Identity{ID: identityID, Username: "alice"}))
}

func TestRequireSignature(t *testing.T) {
	t.Parallel()
	body := `{"items":[{"product_id":"p1","quantity":2}]}`

	t.Run("valid signature restores the body", func(t *testing.T) {
		handler, received := signatureFixture(1 << 20)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest("u1", "alice-secret", http.MethodPut, "/api/v1/users/alice/cart?b=2&a=1", body))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, body, string(*received))
	})

	t.Run("tampered body", func(t *testing.T) {
		handler, _ := signatureFixture(1 << 20)
		req := signedRequest("u1", "alice-secret", http.MethodPut, "/api/v1/users/alice/cart", body)
		req.Body = io.NopCloser(strings.NewReader(strings.Replace(body, "2", "20", 1)))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid request signature", decodeBody(t, rec)["message"])
	})

	t.Run("another identity's key", func(t *testing.T) {
		handler, _ := signatureFixture(1 << 20)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest("u1", "someone-else", http.MethodGet, "/api/v1/users/alice/orders", ""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no key issued yet", func(t *testing.T) {
		handler, _ := signatureFixture(1 << 20)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest("u9", "anything", http.MethodGet, "/api/v1/users/alice/orders", ""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid request signature", decodeBody(t, rec)["message"])
	})

	t.Run("missing headers", func(t *testing.T) {
		handler, _ := signatureFixture(1 << 20)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/orders", nil)
		req = req.WithContext(WithIdentity(req.Context(), model.Identity{ID: "u1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("store failure is a server error", func(t *testing.T) {
		handler, _ := signatureFixture(1 << 20)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest("explode", "x", http.MethodGet, "/", ""))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("body over the limit", func(t *testing.T) {
		handler, _ := signatureFixture(8)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest("u1", "alice-secret", http.MethodPut, "/api/v1/users/alice/cart", body))
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("requires a resolved identity", func(t *testing.T) {
		handler, _ := signatureFixture(1 << 20)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
