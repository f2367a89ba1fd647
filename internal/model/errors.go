package model

import "errors"

var (
	// Identity related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSellerNotPending   = errors.New("seller is not pending review")

	// Session and signing errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrSigningKeyNotFound = errors.New("signing key not found")
	ErrResetTokenNotFound = errors.New("password reset token not found")

	// Catalog and order errors
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrCartEmpty          = errors.New("cart is empty")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrderStatus = errors.New("invalid order status transition")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
