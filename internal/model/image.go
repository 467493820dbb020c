package model

import (
	"strings"
	"time"
)

// ImagePathPrefix is the canonical fetch route for stored images.
const ImagePathPrefix = "/images/"

// Image is either a current image (payload in Data, served by id) or a
// legacy one (only LegacyURL set, pointing at a file outside the database).
//
// Data is never serialised: list and detail responses carry metadata and a
// fetchable URL only.
type Image struct {
	ID           string    `json:"id"`
	ComponentID  *string   `json:"componentId,omitempty"`
	UploaderID   *string   `json:"-"`
	Data         []byte    `json:"-"`
	MIMEType     string    `json:"mimeType,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Size         int64     `json:"size,omitempty"`
	OriginalName string    `json:"originalName,omitempty"`
	LegacyURL    string    `json:"-"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ImageURL returns the canonical fetch URL for a stored image id.
func ImageURL(id string) string {
	return ImagePathPrefix + id
}

// ResolveURL fills URL: a legacy url is used verbatim, otherwise the
// canonical /images/{id} route is synthesised.
func (img *Image) ResolveURL() {
	if strings.TrimSpace(img.LegacyURL) != "" {
		img.URL = img.LegacyURL
		return
	}
	img.URL = ImageURL(img.ID)
}

// HasPayload reports whether the row stores the image bytes itself. Legacy
// rows only point at a file under /uploads/.
func (img *Image) HasPayload() bool {
	return len(img.Data) > 0
}
