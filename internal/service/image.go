package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/imaging"
	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/repository"
)

// ImageService ingests uploads and serves stored images.
type ImageService struct {
	images    repository.ImageRepository
	processor *imaging.Pool
	logger    *slog.Logger
}

func NewImageService(images repository.ImageRepository, processor *imaging.Pool, logger *slog.Logger) *ImageService {
	return &ImageService{images: images, processor: processor, logger: logger}
}

// UploadInput describes one uploaded file. Size is the size declared by the
// client; the body is still read through a limit.
type UploadInput struct {
	Filename string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// UploadResult is what the client needs to reference the image later.
type UploadResult struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
}

// MaxUploadBytes is the largest accepted upload.
func (s *ImageService) MaxUploadBytes() int64 {
	return s.processor.MaxBytes()
}

// Upload validates, normalizes and stores an image as an unattached row
// owned by uploaderID. Nothing is written unless every step succeeds.
func (s *ImageService) Upload(ctx context.Context, uploaderID string, in UploadInput) (*UploadResult, error) {
	if uploaderID == "" {
		return nil, apperror.Unauthenticated("login required to upload images")
	}
	if err := s.processor.Validate(in.MIMEType, in.Size); err != nil {
		return nil, err
	}

	res, err := s.processor.Process(ctx, in.Body)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Cause != nil {
			s.logger.Warn("image processing failed",
				slog.String("filename", in.Filename),
				slog.String("error", appErr.Cause.Error()),
			)
		}
		return nil, err
	}

	img := &model.Image{
		UploaderID:   &uploaderID,
		Data:         res.Data,
		MIMEType:     res.MIMEType,
		Width:        res.Width,
		Height:       res.Height,
		Size:         int64(len(res.Data)),
		OriginalName: filepath.Base(in.Filename),
	}
	if err := s.images.CreateImage(ctx, img); err != nil {
		return nil, fmt.Errorf("service/image: storing upload: %w", err)
	}

	s.logger.Info("image uploaded",
		slog.String("imageID", img.ID),
		slog.String("uploaderID", uploaderID),
		slog.Int64("bytes", img.Size),
		slog.Int("width", img.Width),
		slog.Int("height", img.Height),
	)

	return &UploadResult{
		ID:       img.ID,
		URL:      model.ImageURL(img.ID),
		Width:    img.Width,
		Height:   img.Height,
		Size:     img.Size,
		MIMEType: img.MIMEType,
	}, nil
}

// Get returns an image with its payload. Rows without a payload (legacy
// images) are not servable by id and report NotFound like unknown ids.
func (s *ImageService) Get(ctx context.Context, id string) (*model.Image, error) {
	img, err := s.images.GetImage(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/image: loading %s: %w", id, err)
	}
	if !img.HasPayload() {
		return nil, apperror.NotFound("image", id)
	}
	return img, nil
}

// PruneOrphans deletes images that are attached to no component and were
// uploaded more than olderThan ago.
func (s *ImageService) PruneOrphans(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, apperror.ValidationFailed("olderThan", "age must not be negative")
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	n, err := s.images.DeleteOrphanImages(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("service/image: pruning orphans: %w", err)
	}

	s.logger.Info("orphan images pruned", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	return n, nil
}
