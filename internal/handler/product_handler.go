package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-marketplace/internal/middleware"
	"go-marketplace/internal/model"
	"go-marketplace/internal/service"
)

type ProductHandler struct {
	service *service.CatalogService
}

func NewProductHandler(service *service.CatalogService) *ProductHandler {
	return &ProductHandler{service: service}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, meta, err := h.service.List(r.Context(), model.ProductQuery{
		Category: strings.TrimSpace(query.Get("category")),
		Seller:   strings.TrimSpace(query.Get("seller")),
		Search:   strings.TrimSpace(query.Get("q")),
		Page:     parseIntOrDefault(query.Get("page"), 1),
		Limit:    parseIntOrDefault(query.Get("limit"), 20),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.ProductListData{Items: items}, &meta)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, product, nil)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.ProductRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	product, err := h.service.Create(r.Context(), middleware.ActorFromRequest(r), ownerUsername(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, product, nil)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload model.ProductRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	product, err := h.service.Update(r.Context(), middleware.ActorFromRequest(r), ownerUsername(r), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, product, nil)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.ActorFromRequest(r), ownerUsername(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownerUsername is the stored username of the caller. Routes that use it sit
// behind the ownership guard, so it names the same account as {username}.
func ownerUsername(r *http.Request) string {
	if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
		return identity.Username
	}
	return chi.URLParam(r, "username")
}
