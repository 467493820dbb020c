package service

import (
	"bytes"
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/model"
)

// ImageRefKind tells how an ImageRef identifies its image.
type ImageRefKind int

const (
	RefByID ImageRefKind = iota + 1
	RefByLegacyURL
)

// ImageRef points at an existing image, either by id or by the url stored on
// a legacy row. Clients send references in several historical shapes; they
// are normalized once, when the request body is decoded:
//
//	"abc123"                       → by id
//	"/images/abc123"               → by id
//	{"id": "abc123"}               → by id
//	{"url": "/images/abc123"}      → by id
//	{"url": {"id": "abc123"}}      → by id
//	{"url": "/uploads/old.png"}    → by legacy url
type ImageRef struct {
	Kind  ImageRefKind
	Value string
}

func ImageRefByID(id string) ImageRef {
	return ImageRef{Kind: RefByID, Value: id}
}

func ImageRefByURL(u string) ImageRef {
	return ImageRef{Kind: RefByLegacyURL, Value: u}
}

var imageRoutePrefixes = []string{model.ImagePathPrefix, "/api/images/"}

var errBadImageRef = apperror.ValidationFailed("images", "each image must be an id, an {id} object or a {url} object")

// UnmarshalJSON decodes any accepted reference shape.
func (r *ImageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errBadImageRef
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errBadImageRef
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return errBadImageRef
		}
		if strings.Contains(s, "/") {
			*r = refFromURL(s)
		} else {
			*r = ImageRefByID(s)
		}
		return nil

	case '{':
		var obj struct {
			ID  string          `json:"id"`
			URL json.RawMessage `json:"url"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return errBadImageRef
		}
		return r.fromObject(strings.TrimSpace(obj.ID), bytes.TrimSpace(obj.URL))
	}

	return errBadImageRef
}

func (r *ImageRef) fromObject(id string, rawURL json.RawMessage) error {
	var urlString string
	var urlObject struct {
		ID string `json:"id"`
	}

	if len(rawURL) > 0 && rawURL[0] == '"' {
		if err := json.Unmarshal(rawURL, &urlString); err != nil {
			return errBadImageRef
		}
		urlString = strings.TrimSpace(urlString)
	} else if len(rawURL) > 0 && rawURL[0] == '{' {
		if err := json.Unmarshal(rawURL, &urlObject); err != nil {
			return errBadImageRef
		}
		urlObject.ID = strings.TrimSpace(urlObject.ID)
	}

	if urlString != "" {
		if ref := refFromURL(urlString); ref.Kind == RefByID {
			*r = ref
			return nil
		}
	}
	if urlObject.ID != "" {
		*r = ImageRefByID(urlObject.ID)
		return nil
	}
	if id != "" {
		*r = ImageRefByID(id)
		return nil
	}
	if urlString != "" {
		*r = ImageRefByURL(urlString)
		return nil
	}
	return errBadImageRef
}

// refFromURL maps an image route (relative or absolute) to its id and any
// other url to a legacy reference.
func refFromURL(s string) ImageRef {
	p := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		p = u.Path
	}
	for _, prefix := range imageRoutePrefixes {
		if strings.HasPrefix(p, prefix) {
			if id := path.Base(p); id != "" && id != "." && id != "/" && !strings.HasSuffix(p, "/") {
				return ImageRefByID(id)
			}
		}
	}
	return ImageRefByURL(s)
}

// MarshalJSON writes the canonical object form.
func (r ImageRef) MarshalJSON() ([]byte, error) {
	if r.Kind == RefByLegacyURL {
		return json.Marshal(map[string]string{"url": r.Value})
	}
	return json.Marshal(map[string]string{"id": r.Value})
}
