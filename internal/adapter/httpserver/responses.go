// Package httpserver contains HTTP handlers and middleware.
//
// It provides the REST API endpoints for the application including
// interview creation, answer evaluation and result retrieval.
// The package follows clean architecture principles and provides
// a clear separation between HTTP concerns and business logic.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prepwise/interview-engine/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrEmptyBatch):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrJobNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrDuplicateJob), errors.Is(err, domain.ErrAlreadyTerminal):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrProviderRateLimited):
		code = http.StatusServiceUnavailable
		codeStr = "PROVIDER_RATE_LIMITED"
	case errors.Is(err, domain.ErrProvider):
		code = http.StatusServiceUnavailable
		codeStr = "PROVIDER_UNAVAILABLE"
	case errors.Is(err, domain.ErrDeadlineExceeded):
		code = http.StatusServiceUnavailable
		codeStr = "TIMEOUT"
	case errors.Is(err, domain.ErrUnparsableResponse):
		code = http.StatusServiceUnavailable
		codeStr = "SCHEMA_INVALID"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
