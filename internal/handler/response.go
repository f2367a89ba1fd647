package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go-marketplace/internal/model"
	"go-marketplace/pkg/apierror"
)

const maxJSONBody = 1 << 20

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Message: message,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    apierror.CodeInternal,
		Message: "Unexpected server error",
	}
	var resetTime int64

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		resetTime = apiErr.ResetTime
	} else if errors.Is(err, model.ErrUserNotFound) {
		status = http.StatusNotFound
		body.Code = apierror.CodeNotFound
		body.Message = "User not found"
	} else if errors.Is(err, model.ErrProductNotFound) {
		status = http.StatusNotFound
		body.Code = apierror.CodeNotFound
		body.Message = "Product not found"
	} else if errors.Is(err, model.ErrOrderNotFound) {
		status = http.StatusNotFound
		body.Code = apierror.CodeNotFound
		body.Message = "Order not found"
	} else if errors.Is(err, model.ErrSigningKeyNotFound) {
		status = http.StatusNotFound
		body.Code = apierror.CodeNotFound
		body.Message = "Signing key not found"
	} else if errors.Is(err, model.ErrUserAlreadyExists) {
		status = http.StatusConflict
		body.Code = apierror.CodeConflict
		body.Message = "User already exists"
	} else if errors.Is(err, model.ErrSellerNotPending) {
		status = http.StatusConflict
		body.Code = apierror.CodeConflict
		body.Message = "Seller is not awaiting review"
	} else if errors.Is(err, model.ErrInvalidOrderStatus) {
		status = http.StatusConflict
		body.Code = apierror.CodeConflict
		body.Message = "Order status transition not allowed"
	} else if errors.Is(err, model.ErrInsufficientStock) {
		status = http.StatusConflict
		body.Code = apierror.CodeConflict
		body.Message = "Insufficient stock"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrCartEmpty) {
		status = http.StatusBadRequest
		body.Code = apierror.CodeValidationFailed
		body.Message = "Cart is empty"
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		body.Code = apierror.CodeValidationFailed
		body.Message = "Invalid input"
	} else if errors.Is(err, model.ErrResetTokenNotFound) {
		status = http.StatusBadRequest
		body.Code = apierror.CodeValidationFailed
		body.Message = "Invalid or expired reset token"
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		body.Code = apierror.CodeUnauthenticated
		body.Message = "Invalid credentials"
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		body.Code = apierror.CodeUnauthenticated
		body.Message = "Authentication required"
	} else if errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		body.Code = apierror.CodeForbidden
		body.Message = "Access denied"
	} else {
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success:   false,
		Message:   body.Message,
		ResetTime: resetTime,
		Error:     body,
	})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierror.PayloadTooLarge(tooLarge.Limit)
		}
		return apierror.Validation("invalid JSON body", "")
	}

	return nil
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
