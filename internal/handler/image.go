package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/auth"
	"github.com/compopedia/compopedia/internal/service"
)

const (
	// multipartOverhead is the slack allowed on top of the file limit for
	// boundaries and part headers.
	multipartOverhead = 64 << 10
	// multipartMemory is kept in memory; larger parts spill to temp files.
	multipartMemory = 1 << 20

	imageCacheControl = "public, max-age=31536000, immutable"
)

// ImageHandler accepts uploads and serves stored images.
type ImageHandler struct {
	images *service.ImageService
	logger *slog.Logger
}

func NewImageHandler(images *service.ImageService, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{images: images, logger: logger}
}

// HandleUpload ingests one image from the multipart field "file".
//
// HTTP: POST /api/upload
// Auth: Required
// RESPONSE: 201 {"id": "...", "url": "/images/...", "width": 1200, "height": 800, "size": 83000, "mimeType": "image/webp"}
//
// The body is capped with http.MaxBytesReader, so an oversized upload is
// cut off while reading instead of being buffered.
func (h *ImageHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.images.MaxUploadBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, apperror.ValidationFailed("file", "file exceeds the 5 MiB limit"))
			return
		}
		writeError(w, h.logger, apperror.ValidationFailed("file", "expected a multipart form with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("file", "no file uploaded"))
		return
	}
	defer file.Close()

	res, err := h.images.Upload(r.Context(), userID, service.UploadInput{
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleGet serves image bytes. Stored images never change, so responses
// are cacheable forever and the id doubles as the ETag.
//
// HTTP: GET /images/{id}
func (h *ImageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	etag := `"` + id + `"`

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", imageCacheControl)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	img, err := h.images.Get(r.Context(), id)
	if err != nil {
		status, _ := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("image fetch failed", slog.String("imageID", id), slog.String("error", err.Error()))
			http.Error(w, "Internal Server Error", status)
			return
		}
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", img.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", imageCacheControl)
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(img.Data); err != nil {
		h.logger.Warn("image write aborted", slog.String("imageID", id), slog.String("error", err.Error()))
	}
}

// etagMatches reports whether an If-None-Match header lists etag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
