package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-marketplace/internal/middleware"
	"go-marketplace/internal/model"
	"go-marketplace/internal/service"
)

type OrderHandler struct {
	service *service.OrderService
}

func NewOrderHandler(service *service.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// Place checks out the caller's cart.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Place(r.Context(), middleware.ActorFromRequest(r), ownerUsername(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, order, nil)
}

func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListForBuyer(r.Context(), ownerUsername(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.OrderListData{Items: orders}, nil)
}

func (h *OrderHandler) ListForSeller(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListForSeller(r.Context(), ownerUsername(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.OrderListData{Items: orders}, nil)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var payload model.OrderStatusRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), middleware.ActorFromRequest(r), ownerUsername(r), chi.URLParam(r, "id"), payload.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, order, nil)
}
