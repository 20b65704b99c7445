package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Reports
	mux.Handle("GET /api/v1/reports", chain(http.HandlerFunc(h.ListReports)))
	mux.Handle("GET /api/v1/reports/{id}", chain(http.HandlerFunc(h.GetReport)))
	mux.Handle("GET /api/v1/reports/{id}/columns", chain(http.HandlerFunc(h.GetReportColumns)))
}
