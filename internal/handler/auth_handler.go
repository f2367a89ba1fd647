package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go-marketplace/internal/middleware"
	"go-marketplace/internal/model"
	"go-marketplace/internal/ratelimit"
)

type authService interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.User, error)
	Login(ctx context.Context, login string, password string) (model.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, password string) error
	Me(ctx context.Context, identity model.Identity) (model.User, error)
}

type signingKeyService interface {
	GetOrCreateSigningKey(ctx context.Context, identityID string) (string, error)
}

type AuthHandler struct {
	service      authService
	keys         signingKeyService
	limiter      *middleware.BucketLimiter
	secureCookie bool
}

func NewAuthHandler(service authService, keys signingKeyService, limiter *middleware.BucketLimiter, secureCookie bool) *AuthHandler {
	return &AuthHandler{service: service, keys: keys, limiter: limiter, secureCookie: secureCookie}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), payload.Login, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.Token, session.ExpiresAt))
	writeSuccess(w, http.StatusOK, session, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.sessionCookie("", time.Unix(0, 0)))
	writeMessage(w, http.StatusOK, "logged out")
}

// ForgotPassword answers 202 whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ForgotPasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	email := strings.TrimSpace(payload.Email)
	if h.limiter != nil && !h.limiter.Allow(w, r, ratelimit.BucketResetPassword, email) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), email); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusAccepted, "if the email is registered a reset link has been sent")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), payload.Token, payload.Password); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "password updated")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	user, err := h.service.Me(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

// SigningKey returns the caller's HMAC secret, creating it on first use.
func (h *AuthHandler) SigningKey(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	secret, err := h.keys.GetOrCreateSigningKey(r.Context(), identity.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"signing_key": secret}, nil)
}

func (h *AuthHandler) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	return cookie
}
