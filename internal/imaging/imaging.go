// Package imaging normalizes uploaded pictures: decode, downscale, re-encode
// as WebP.
//
// Every stored image goes through Processor.Process, so the catalog only ever
// serves WebP files whose longer side is at most MaxDimension pixels.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"io"

	// Decoders for the accepted upload formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"

	"github.com/compopedia/compopedia/internal/apperror"
)

const (
	// MaxUploadBytes is the largest accepted upload (5 MiB).
	MaxUploadBytes = 5 << 20

	// MaxDimension bounds the longer side of a stored image.
	MaxDimension = 1200

	// Quality is the lossy WebP quality used for every stored image.
	Quality = 80

	// OutputMIMEType is the content type of every processed image.
	OutputMIMEType = "image/webp"
)

var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AllowedMIMEType reports whether uploads with this declared type are accepted.
func AllowedMIMEType(mimeType string) bool {
	return allowedMIMETypes[mimeType]
}

// Result is a processed image ready to be stored.
type Result struct {
	Data     []byte
	Width    int
	Height   int
	MIMEType string
}

// Processor holds the limits applied to uploads. The zero value is not
// usable; call NewProcessor.
type Processor struct {
	maxBytes     int64
	maxDimension int
	quality      int
}

// NewProcessor returns a Processor with the production limits.
func NewProcessor() *Processor {
	return &Processor{
		maxBytes:     MaxUploadBytes,
		maxDimension: MaxDimension,
		quality:      Quality,
	}
}

// MaxBytes is the upload size limit. The HTTP layer uses it to size
// http.MaxBytesReader.
func (p *Processor) MaxBytes() int64 {
	return p.maxBytes
}

// Validate checks the declared metadata of an upload before any byte is read.
func (p *Processor) Validate(mimeType string, size int64) error {
	if size > p.maxBytes {
		return apperror.ValidationFailed("file", fmt.Sprintf("file exceeds the %d MiB limit", p.maxBytes>>20))
	}
	if !AllowedMIMEType(mimeType) {
		return apperror.ValidationFailed("file", "only JPEG, PNG, GIF and WebP images are accepted")
	}
	return nil
}

// Process reads at most MaxBytes from r, decodes it, scales it down to fit
// within MaxDimension on its longer side and encodes it as WebP.
//
// A body over the limit is a validation error even when the declared size
// was smaller. Bytes that do not decode as an image are a processing error.
func (p *Processor) Process(r io.Reader) (Result, error) {
	raw, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("imaging: reading upload: %w", err)
	}
	if int64(len(raw)) > p.maxBytes {
		return Result{}, apperror.ValidationFailed("file", fmt.Sprintf("file exceeds the %d MiB limit", p.maxBytes>>20))
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, apperror.ProcessingFailed(fmt.Errorf("imaging: decoding: %w", err))
	}

	img := p.resize(src)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: p.quality}); err != nil {
		return Result{}, apperror.ProcessingFailed(fmt.Errorf("imaging: encoding webp: %w", err))
	}

	b := img.Bounds()
	return Result{
		Data:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
		MIMEType: OutputMIMEType,
	}, nil
}

// resize returns src unchanged when it already fits.
func (p *Processor) resize(src image.Image) image.Image {
	w, h := FitWithin(src.Bounds().Dx(), src.Bounds().Dy(), p.maxDimension)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// FitWithin scales (w, h) so the longer side is at most limit, keeping the
// aspect ratio. Images already within the limit are returned unchanged;
// neither side drops below one pixel.
func FitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		nh := max(1, int(float64(h)*float64(limit)/float64(w)+0.5))
		return limit, nh
	}
	nw := max(1, int(float64(w)*float64(limit)/float64(h)+0.5))
	return nw, limit
}
