package handler

import (
	"net/http"

	"go-marketplace/internal/model"
	"go-marketplace/internal/service"
)

type CartHandler struct {
	service *service.CartService
}

func NewCartHandler(service *service.CartService) *CartHandler {
	return &CartHandler{service: service}
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.Get(r.Context(), ownerUsername(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, cart, nil)
}

func (h *CartHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var payload model.CartRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.service.Replace(r.Context(), ownerUsername(r), payload.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, cart, nil)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), ownerUsername(r)); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
