package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/imaging"
	"github.com/compopedia/compopedia/internal/model"
)

func TestImageService_Upload(t *testing.T) {
	db := newTestStore(t)
	svc := newTestImageService(db)
	user := mustCreateUser(t, db, "up@example.com")
	ctx := context.Background()

	data := pngImage(t, 2400, 1600)
	res, err := svc.Upload(ctx, user.ID, UploadInput{
		Filename: "../../etc/photo.png",
		MIMEType: "image/png",
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if res.Width != imaging.MaxDimension || res.Height != 800 {
		t.Errorf("dimensions = %dx%d, want 1200x800", res.Width, res.Height)
	}
	if res.MIMEType != "image/webp" || res.URL != "/images/"+res.ID {
		t.Errorf("Upload() = %+v", res)
	}

	stored, err := svc.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.ComponentID != nil {
		t.Error("fresh upload must be unattached")
	}
	if stored.UploaderID == nil || *stored.UploaderID != user.ID {
		t.Error("uploader not recorded")
	}
	if stored.OriginalName != "photo.png" {
		t.Errorf("OriginalName = %q, want base name only", stored.OriginalName)
	}
	if int64(len(stored.Data)) != res.Size {
		t.Errorf("stored %d bytes, reported %d", len(stored.Data), res.Size)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(stored.Data))
	if err != nil {
		t.Fatalf("stored payload is not decodable: %v", err)
	}
	if format != "webp" || cfg.Width != 1200 || cfg.Height != 800 {
		t.Errorf("stored payload = %s %dx%d", format, cfg.Width, cfg.Height)
	}
}

func TestImageService_Upload_Rejections(t *testing.T) {
	valid := func(t *testing.T) []byte { return pngImage(t, 20, 20) }

	tests := []struct {
		name    string
		user    bool
		mime    string
		size    func(data []byte) int64
		body    func(t *testing.T) []byte
		wantErr error
	}{
		{
			name:    "anonymous",
			mime:    "image/png",
			body:    valid,
			wantErr: apperror.ErrUnauthenticated,
		},
		{
			name:    "unsupported type",
			user:    true,
			mime:    "image/svg+xml",
			body:    valid,
			wantErr: apperror.ErrValidation,
		},
		{
			name:    "declared oversize",
			user:    true,
			mime:    "image/png",
			size:    func([]byte) int64 { return imaging.MaxUploadBytes + 1 },
			body:    valid,
			wantErr: apperror.ErrValidation,
		},
		{
			name:    "actual oversize",
			user:    true,
			mime:    "image/jpeg",
			size:    func([]byte) int64 { return 100 },
			body:    func(*testing.T) []byte { return bytes.Repeat([]byte{0xff}, imaging.MaxUploadBytes+10) },
			wantErr: apperror.ErrValidation,
		},
		{
			name:    "not an image",
			user:    true,
			mime:    "image/png",
			body:    func(*testing.T) []byte { return []byte(strings.Repeat("plain text ", 50)) },
			wantErr: apperror.ErrProcessing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestStore(t)
			svc := newTestImageService(db)
			uploader := ""
			if tt.user {
				uploader = mustCreateUser(t, db, "u@example.com").ID
			}

			data := tt.body(t)
			size := int64(len(data))
			if tt.size != nil {
				size = tt.size(data)
			}
			_, err := svc.Upload(context.Background(), uploader, UploadInput{
				Filename: "x", MIMEType: tt.mime, Size: size, Body: bytes.NewReader(data),
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Upload() = %v, want %v", err, tt.wantErr)
			}

			n, err := db.DeleteOrphanImages(context.Background(), time.Now().Add(time.Hour))
			if err != nil {
				t.Fatal(err)
			}
			if n != 0 {
				t.Errorf("rejected upload left %d rows behind", n)
			}
		})
	}
}

func TestImageService_Get(t *testing.T) {
	db := newTestStore(t)
	svc := newTestImageService(db)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	legacy := &model.Image{LegacyURL: "/uploads/old.png"}
	if err := db.CreateImage(ctx, legacy); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, legacy.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(legacy) = %v, want ErrNotFound", err)
	}
}

func TestImageService_PruneOrphans(t *testing.T) {
	db := newTestStore(t)
	svc := newTestImageService(db)
	user := mustCreateUser(t, db, "p@example.com")
	ctx := context.Background()

	orphan := uploadTestImage(t, svc, user.ID)

	// A one-hour grace period keeps the fresh upload.
	n, err := svc.PruneOrphans(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("PruneOrphans(1h) = %d, %v; want 0", n, err)
	}

	n, err = svc.PruneOrphans(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("PruneOrphans(0) = %d, %v; want 1", n, err)
	}
	if _, err := svc.Get(ctx, orphan.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("pruned image still served: %v", err)
	}

	if _, err := svc.PruneOrphans(ctx, -time.Second); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("negative age = %v, want ErrValidation", err)
	}
}
