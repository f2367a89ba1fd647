package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{2,31}$`)

// ResetNotifier delivers a password-reset token to its owner.
type ResetNotifier func(ctx context.Context, user model.User, token string)

type AuthOptions struct {
	JWTSecret  string
	SessionTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	Notify     ResetNotifier
	Now        func() time.Time
}

type AuthService struct {
	users      UserStore
	resets     PasswordResetStore
	jwtSecret  []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	bcryptCost int
	notify     ResetNotifier
	nowFn      func() time.Time
}

func NewAuthService(users UserStore, resets PasswordResetStore, opts AuthOptions) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 30 * time.Minute
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcryptCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notify == nil {
		opts.Notify = logResetToken
	}

	return &AuthService{
		users:      users,
		resets:     resets,
		jwtSecret:  []byte(opts.JWTSecret),
		sessionTTL: opts.SessionTTL,
		resetTTL:   opts.ResetTTL,
		bcryptCost: opts.BcryptCost,
		notify:     opts.Notify,
		nowFn:      opts.Now,
	}
}

// Email delivery lives outside this service.
func logResetToken(ctx context.Context, user model.User, _ string) {
	slog.InfoContext(ctx, "password reset issued", "user_id", user.ID)
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	if !usernamePattern.MatchString(username) {
		return model.User{}, apierror.Validation("username must be 3-32 letters, digits, '.', '_' or '-'", "username")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.User{}, apierror.Validation("email is invalid", "email")
	}
	if len(req.Password) < minPasswordLength {
		return model.User{}, apierror.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength), "password")
	}

	role := model.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, ok := model.ParseRole(req.Role)
		if !ok || parsed == model.RoleAdmin {
			return model.User{}, apierror.Validation("role must be user or seller", "role")
		}
		role = parsed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if role == model.RoleSeller {
		pending := model.SellerPending
		user.SellerStatus = &pending
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Login accepts an email address or a username.
func (s *AuthService) Login(ctx context.Context, login string, password string) (model.Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return model.Session{}, model.ErrInvalidCredentials
	}

	var user model.User
	var err error
	if strings.Contains(login, "@") {
		user, err = s.users.FindByEmail(ctx, login)
	} else {
		user, err = s.users.FindByUsername(ctx, login)
	}
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Session{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.Session{}, model.ErrInvalidCredentials
	}

	return s.IssueSession(user)
}

func (s *AuthService) IssueSession(user model.User) (model.Session, error) {
	now := s.nowFn().UTC()
	expiresAt := now.Add(s.sessionTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID,
		"role":     string(user.Role),
		"email":    user.Email,
		"username": user.Username,
		"pwd":      passwordEpoch(user),
		"iat":      now.Unix(),
		"exp":      expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return model.Session{}, fmt.Errorf("sign session: %w", err)
	}

	return model.Session{Token: signed, ExpiresAt: expiresAt, User: user.Identity()}, nil
}

// ValidateSession checks the token signature and expiry and returns its claims.
func (s *AuthService) ValidateSession(token string) (model.SessionClaims, error) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.nowFn),
	)
	if err != nil || !parsed.Valid {
		return model.SessionClaims{}, model.ErrUnauthorized
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return model.SessionClaims{}, model.ErrUnauthorized
	}

	claims := model.SessionClaims{}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Email, _ = claimsMap["email"].(string)
	claims.Username, _ = claimsMap["username"].(string)
	role, _ := claimsMap["role"].(string)
	claims.Role = model.Role(role)
	if iat, err := claimsMap.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if pwd, ok := claimsMap["pwd"].(float64); ok {
		claims.PasswordEpoch = int64(pwd)
	}

	if claims.UserID == "" || (claims.Email == "" && claims.Username == "") {
		return model.SessionClaims{}, model.ErrUnauthorized
	}
	return claims, nil
}

// ResolveIdentity loads the caller named by the session: email first, then
// username. Only a not-found on email falls through. Sessions issued under an
// earlier password are refused.
func (s *AuthService) ResolveIdentity(ctx context.Context, claims model.SessionClaims) (model.Identity, error) {
	user, err := s.findForClaims(ctx, claims)
	if err != nil {
		return model.Identity{}, err
	}

	if user.ID != claims.UserID {
		return model.Identity{}, model.ErrUnauthorized
	}
	if claims.PasswordEpoch != passwordEpoch(user) {
		return model.Identity{}, model.ErrUnauthorized
	}

	return user.Identity(), nil
}

func (s *AuthService) findForClaims(ctx context.Context, claims model.SessionClaims) (model.User, error) {
	if email := strings.TrimSpace(claims.Email); email != "" {
		user, err := s.users.FindByEmail(ctx, email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, err
		}
	}

	if username := strings.TrimSpace(claims.Username); username != "" {
		user, err := s.users.FindByUsername(ctx, username)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, err
		}
	}

	return model.User{}, model.ErrUnauthorized
}

// Authenticate validates a session token and resolves its identity.
func (s *AuthService) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	claims, err := s.ValidateSession(token)
	if err != nil {
		return model.Identity{}, err
	}
	return s.ResolveIdentity(ctx, claims)
}

// ForgotPassword issues a reset token when the email is known. Unknown emails
// succeed silently so callers cannot probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apierror.Validation("email is required", "email")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, err := randomHex(32)
	if err != nil {
		return err
	}

	if err := s.resets.Store(ctx, model.PasswordReset{
		TokenHash: hashToken(token),
		UserID:    user.ID,
		ExpiresAt: s.nowFn().UTC().Add(s.resetTTL),
	}); err != nil {
		return err
	}

	s.notify(ctx, user, token)
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token string, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apierror.Validation("token is required", "token")
	}
	if len(password) < minPasswordLength {
		return apierror.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength), "password")
	}

	userID, err := s.resets.Consume(ctx, hashToken(token))
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.users.UpdatePassword(ctx, userID, string(hash), s.nowFn().UTC())
}

func (s *AuthService) Me(ctx context.Context, identity model.Identity) (model.User, error) {
	return s.users.FindByID(ctx, identity.ID)
}

// passwordEpoch stamps sessions with the password they were issued under.
// Microseconds survive a round trip through timestamptz.
func passwordEpoch(user model.User) int64 {
	if user.PasswordChangedAt == nil {
		return 0
	}
	return user.PasswordChangedAt.UnixMicro()
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
