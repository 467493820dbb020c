package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// UploadsURLPrefix is the public path under which legacy image files are
// served from the upload directory.
const UploadsURLPrefix = "/uploads/"

// IsUploadsURL reports whether u points into the upload directory.
func IsUploadsURL(u string) bool {
	return strings.HasPrefix(u, UploadsURLPrefix)
}

// UploadDir is the directory holding legacy image files. All access goes
// through an os.Root, so a crafted url cannot escape the directory.
type UploadDir struct {
	dir string
}

func NewUploadDir(dir string) *UploadDir {
	return &UploadDir{dir: dir}
}

// Dir is the filesystem path of the upload directory.
func (u *UploadDir) Dir() string {
	return u.dir
}

// Remove unlinks the file behind a "/uploads/..." url. A file that is
// already gone is not an error.
func (u *UploadDir) Remove(url string) error {
	cleaned := path.Clean(url)
	if !IsUploadsURL(url) || !IsUploadsURL(cleaned) {
		return fmt.Errorf("uploads: %q is not under %s", url, UploadsURLPrefix)
	}
	rel := strings.TrimPrefix(cleaned, UploadsURLPrefix)

	root, err := os.OpenRoot(u.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("uploads: opening %s: %w", u.dir, err)
	}
	defer root.Close()

	if err := root.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("uploads: removing %s: %w", rel, err)
	}
	return nil
}
