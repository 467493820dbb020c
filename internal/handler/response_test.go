package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compopedia/compopedia/internal/apperror"
)

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantType    string
		wantMessage string
	}{
		{"validation", apperror.ValidationFailed("title", "too short"), http.StatusBadRequest, "validation_error", "too short"},
		{"unauthenticated", apperror.Unauthenticated("login required"), http.StatusUnauthorized, "unauthorized", "login required"},
		{"not found", apperror.NotFound("component", "c1"), http.StatusNotFound, "not_found", "component not found with id c1"},
		{"conflict", apperror.Duplicate("email", "email is already in use"), http.StatusConflict, "conflict", "email is already in use"},
		{"processing", apperror.ProcessingFailed(errors.New("webp: bad header")), http.StatusUnprocessableEntity, "processing_error", "the uploaded file could not be processed as an image"},
		{"wrapped", fmt.Errorf("service: %w", apperror.NotFound("image", "i1")), http.StatusNotFound, "not_found", "image not found with id i1"},
		{"store failure", errors.New("sqlite: disk I/O error at /var/db"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
		{"client gone", fmt.Errorf("service/image: %w", context.Canceled), statusClientClosedRequest, "canceled", "request canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, logger, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body.Error)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.NotContains(t, rr.Body.String(), "sqlite")
			assert.NotContains(t, rr.Body.String(), "webp")
		})
	}
}

func TestWriteError_LogLevels(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{"canceled request is a warning", context.Canceled, "level=WARN"},
		{"store failure is an error", errors.New("sqlite: locked"), "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			writeError(httptest.NewRecorder(), logger, tt.err)
			assert.Contains(t, logs.String(), tt.wantLevel)
		})
	}

	var logs bytes.Buffer
	writeError(httptest.NewRecorder(), slog.New(slog.NewTextHandler(&logs, nil)), apperror.NotFound("image", "i1"))
	assert.Empty(t, logs.String(), "client errors are not logged")
}

func TestEtagMatches(t *testing.T) {
	assert.False(t, etagMatches("", `"a"`))
	assert.True(t, etagMatches(`"a"`, `"a"`))
	assert.True(t, etagMatches(`"b", W/"a"`, `"a"`))
	assert.False(t, etagMatches(`"b"`, `"a"`))
}
