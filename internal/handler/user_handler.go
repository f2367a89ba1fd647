package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-marketplace/internal/middleware"
	"go-marketplace/internal/model"
	"go-marketplace/internal/service"
)

// UserHandler serves the admin user-management routes.
type UserHandler struct {
	service *service.UserService
}

func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.UserListData{Users: users}, nil)
}

func (h *UserHandler) ListPendingSellers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListPendingSellers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.UserListData{Users: users}, nil)
}

func (h *UserHandler) ReviewSeller(w http.ResponseWriter, r *http.Request) {
	var payload model.SellerReviewRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.ReviewSeller(r.Context(), middleware.ActorFromRequest(r), chi.URLParam(r, "username"), payload.Decision)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var payload model.UpdateRoleRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.UpdateRole(r.Context(), middleware.ActorFromRequest(r), chi.URLParam(r, "username"), payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}
