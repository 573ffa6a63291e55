package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/bursar"
)

// Response is the envelope of every JSON body the API writes.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
	Meta  *Meta  `json:"meta,omitempty"`
}

// Meta carries list pagination.
type Meta struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
	Count  int `json:"count"`
}

// Error is the error body. Fields maps a request field to its failed rule.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Error codes.
const (
	CodeBadRequest       = "bad_request"
	CodeValidation       = "validation_error"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeTenantMismatch   = "tenant_mismatch"
	CodeInvalidSignature = "invalid_signature"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Data: data})
}

func created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Response{Data: data})
}

func list(w http.ResponseWriter, data any, count, limit, offset int) {
	writeJSON(w, http.StatusOK, Response{Data: data, Meta: &Meta{Limit: limit, Offset: offset, Count: count}})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Response{Error: &Error{Code: CodeBadRequest, Message: message}})
}

// classify maps an engine error onto a status code and error body.
func classify(err error) (int, *Error) {
	switch {
	case errors.Is(err, bursar.ErrInvalidSignature):
		return http.StatusBadRequest, &Error{Code: CodeInvalidSignature, Message: "webhook signature verification failed"}
	case errors.Is(err, bursar.ErrTenantMismatch):
		return http.StatusForbidden, &Error{Code: CodeTenantMismatch, Message: "invoice belongs to another tenant"}
	case bursar.IsValidation(err):
		return http.StatusBadRequest, &Error{Code: CodeValidation, Message: err.Error(), Fields: fieldErrors(err)}
	case bursar.IsNotFound(err), errors.Is(err, bursar.ErrUnknownGateway):
		return http.StatusNotFound, &Error{Code: CodeNotFound, Message: err.Error()}
	case bursar.IsConflict(err):
		return http.StatusConflict, &Error{Code: CodeConflict, Message: err.Error()}
	case bursar.IsRetryable(err), errors.Is(err, bursar.ErrNoGateway):
		return http.StatusServiceUnavailable, &Error{Code: CodeUnavailable, Message: err.Error()}
	default:
		return http.StatusInternalServerError, &Error{Code: CodeInternal, Message: "internal error"}
	}
}

func fieldErrors(err error) map[string]string {
	var fields map[string]string
	add := func(e error) {
		var ve bursar.ValidationError
		if errors.As(e, &ve) {
			if fields == nil {
				fields = make(map[string]string)
			}
			fields[ve.Field] = ve.Message
		}
	}

	var me bursar.MultiError
	if errors.As(err, &me) {
		for _, e := range me.Errors {
			add(e)
		}
		return fields
	}
	add(err)
	return fields
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, Response{Error: body})
}
