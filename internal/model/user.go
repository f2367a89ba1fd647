package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleSeller:
		return RoleSeller, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

type SellerStatus string

const (
	SellerPending  SellerStatus = "pending"
	SellerApproved SellerStatus = "approved"
	SellerRejected SellerStatus = "rejected"
)

func ParseSellerDecision(raw string) (SellerStatus, bool) {
	switch SellerStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case SellerApproved:
		return SellerApproved, true
	case SellerRejected:
		return SellerRejected, true
	}
	return "", false
}

// User is the stored identity row.
type User struct {
	ID                string        `json:"id"`
	Username          string        `json:"username"`
	Email             string        `json:"email"`
	PasswordHash      string        `json:"-"`
	Role              Role          `json:"role"`
	SellerStatus      *SellerStatus `json:"seller_status"`
	PasswordChangedAt *time.Time    `json:"-"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// EffectiveSellerStatus reads a seller without a stored status as pending.
// Non-sellers have no status.
func (u User) EffectiveSellerStatus() *SellerStatus {
	if u.Role != RoleSeller {
		return nil
	}
	if u.SellerStatus == nil || *u.SellerStatus == "" {
		pending := SellerPending
		return &pending
	}
	status := *u.SellerStatus
	return &status
}

func (u User) Identity() Identity {
	return Identity{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		SellerStatus: u.EffectiveSellerStatus(),
	}
}

// Identity is the resolved caller of a request.
type Identity struct {
	ID           string        `json:"id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	Role         Role          `json:"role"`
	SellerStatus *SellerStatus `json:"seller_status"`
}

type SessionClaims struct {
	UserID   string
	Username string
	Email    string
	Role     Role
	IssuedAt time.Time
	// PasswordEpoch is the password change time, in unix microseconds, the
	// session was issued under. Zero when the password was never changed.
	PasswordEpoch int64
}

type Session struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Identity  `json:"user"`
}

type SigningKey struct {
	OwnerID   string    `json:"owner_id"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

type PasswordReset struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
}
