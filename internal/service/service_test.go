package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"testing"

	"github.com/compopedia/compopedia/internal/imaging"
	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/repository/sqlite"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore returns a migrated in-memory store closed at test end.
func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:", newTestLogger())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, db *sqlite.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Name: "User", Email: email, PasswordHash: "x"}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 5 {
		for x := 0; x < w; x += 5 {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// uploadTestImage stores a small processed image owned by uploaderID.
func uploadTestImage(t *testing.T, svc *ImageService, uploaderID string) *UploadResult {
	t.Helper()
	data := pngImage(t, 40, 30)
	res, err := svc.Upload(context.Background(), uploaderID, UploadInput{
		Filename: "shot.png",
		MIMEType: "image/png",
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return res
}

func newTestImageService(db *sqlite.DB) *ImageService {
	return NewImageService(db, imaging.NewPool(imaging.NewProcessor(), 2, newTestLogger()), newTestLogger())
}
