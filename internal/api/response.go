package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/tspbatch/internal/repo"
)

// errorCode — машинный код ошибки в конверте ответа.
type errorCode string

const (
	codeBadRequest errorCode = "BAD_REQUEST"
	codeNotFound   errorCode = "NOT_FOUND"
	codeInternal   errorCode = "INTERNAL_ERROR"
)

// errorBody — конверт ошибки: {"error": {...}}.
type errorBody struct {
	Error struct {
		Code      errorCode `json:"code"`
		Message   string    `json:"message"`
		RequestID string    `json:"request_id,omitempty"`
	} `json:"error"`
}

// dataBody — конверт успешного ответа. Total заполняется только у списков.
type dataBody struct {
	Data  any  `json:"data"`
	Total *int `json:"total,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, dataBody{Data: data})
}

func writeList(w http.ResponseWriter, items any, total int) {
	writeJSON(w, http.StatusOK, dataBody{Data: items, Total: &total})
}

// writeError отвечает конвертом ошибки с request id запроса.
func writeError(w http.ResponseWriter, r *http.Request, status int, code errorCode, msg string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	body.Error.RequestID = RequestIDFrom(r.Context())
	writeJSON(w, status, body)
}

// fail отвечает на ошибку хранилища: ErrNotFound — 404 с notFound,
// остальное логируется и скрывается за 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, codeNotFound, notFound)
		return
	}
	h.logger.Error("report store failed",
		"path", r.URL.Path,
		"request_id", RequestIDFrom(r.Context()),
		"error", err,
	)
	writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error")
}
