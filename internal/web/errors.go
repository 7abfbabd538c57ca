package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"docsheet/internal/export"
	"docsheet/internal/logger"
	"docsheet/internal/ocr"
	"docsheet/internal/sheet"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var (
	// errBadRequest marks malformed request bodies and parameters.
	errBadRequest = errors.New("bad request")

	// errNotFound marks unknown resource ids.
	errNotFound = errors.New("not found")
)

// classify maps an error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytes), errors.Is(err, ocr.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.Is(err, sheet.ErrInvalidColumn):
		return http.StatusBadRequest, "invalid_column"
	case errors.Is(err, sheet.ErrInvalidCellID):
		return http.StatusBadRequest, "invalid_cell_id"
	case errors.Is(err, sheet.ErrOutOfRange):
		return http.StatusBadRequest, "out_of_range"
	case errors.Is(err, ocr.ErrInvalidDocument), errors.Is(err, export.ErrEmptyWorkbook):
		return http.StatusBadRequest, "invalid_document"
	case errors.Is(err, ocr.ErrEmptyDocument):
		return http.StatusBadRequest, "empty_document"
	case errors.Is(err, ocr.ErrTooManyPages):
		return http.StatusBadRequest, "too_many_pages"
	case errors.Is(err, export.ErrInvalidSheetName), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ocr.ErrOCRFailed),
		errors.Is(err, ocr.ErrMissingCredentials),
		errors.Is(err, ocr.ErrInvalidConfiguration):
		return http.StatusBadGateway, "ocr_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError logs err and writes it as JSON with the mapped status.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	log := logger.FromContext(r.Context())
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("code", code).
		Msg("request failed")

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("json encode error")
	}
}
