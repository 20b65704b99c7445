package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListReports возвращает последние отчёты.
// GET /api/v1/reports?limit=...
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	summaries, err := h.reports.List(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err, "no reports")
		return
	}

	writeList(w, summaries, len(summaries))
}

// GetReport возвращает отчёт run'а.
// GET /api/v1/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	writeData(w, report)
}

// GetReportColumns возвращает колоночное представление отчёта:
// отсутствующие позиции — null.
// GET /api/v1/reports/{id}/columns
func (h *Handler) GetReportColumns(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	writeData(w, report.Columns())
}

func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (*domain.Report, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid report id")
		return nil, false
	}

	report, err := h.reports.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "report not found")
		return nil, false
	}
	return report, true
}
