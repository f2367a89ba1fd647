package handler

import (
	"net/http"

	"go-marketplace/internal/model"
	"go-marketplace/internal/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List serves the admin audit view. type may repeat or hold a comma list.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, meta, err := h.service.Query(r.Context(), service.AuditFilter{
		Types:    query["type"],
		Actor:    query.Get("actor"),
		Role:     query.Get("role"),
		Outcome:  query.Get("outcome"),
		Resource: query.Get("resource"),
		From:     query.Get("from"),
		To:       query.Get("to"),
		Page:     parseIntOrDefault(query.Get("page"), 1),
		Limit:    parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}
