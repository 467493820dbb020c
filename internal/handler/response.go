package handler

// RESPONSE HELPERS:
// Every JSON endpoint answers through writeJSON and writeError, so all
// errors share one shape:
//
//	{"error": "not_found", "message": "component not found with id abc123"}
//
// Validation errors also name the offending input:
//
//	{"error": "validation_error", "message": "image not found", "field": "images"}

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/compopedia/compopedia/internal/apperror"
)

// maxJSONBody bounds request bodies of the JSON API. Text blocks can be
// large, images never travel in JSON.
const maxJSONBody = 8 << 20

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sets headers before the status line; anything set after
// WriteHeader is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusClientClosedRequest is the nginx convention for a request whose
// client went away before the response was ready.
const statusClientClosedRequest = 499

// errorStatus maps an error to its HTTP status and machine-readable type.
// Anything that is not an *AppError or a canceled context is an internal
// failure.
func errorStatus(err error) (int, string) {
	if errors.Is(err, context.Canceled) {
		return statusClientClosedRequest, "canceled"
	}

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, "internal_error"
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrProcessing):
		return http.StatusUnprocessableEntity, "processing_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError translates a service error into a response. Internal errors
// are logged in full and answered with a generic message: raw errors can
// carry SQL or file paths.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, errorType := errorStatus(err)

	if status == statusClientClosedRequest {
		logger.Warn("request canceled", slog.String("error", err.Error()))
		writeJSON(w, status, ErrorResponse{Error: errorType, Message: "request canceled"})
		return
	}

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a bounded JSON body into dst. Validation errors raised
// while decoding (image references) are returned as they are; any other
// decode failure is a generic bad-body error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "request body is too large")
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
