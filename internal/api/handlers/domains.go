package handlers

import (
	"net/http"

	"github.com/bigkaa/tempshare/internal/service"
)

// DomainsHandler — обработчик GET /api/domains.
type DomainsHandler struct {
	svc *service.DomainService
}

// NewDomainsHandler создаёт обработчик списка доменов.
func NewDomainsHandler(svc *service.DomainService) *DomainsHandler {
	return &DomainsHandler{svc: svc}
}

// ListDomains отдаёт массив доменов.
func (h *DomainsHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}
