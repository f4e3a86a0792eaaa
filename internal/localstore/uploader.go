// Package localstore mirrors saved attachments into a second directory, for
// example one served by a CDN origin or a backup volume.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrInvalidObjectName = errors.New("invalid object name")

type Uploader struct {
	Fs      afero.Fs
	Dir     string
	BaseURL string
}

func NewUploader(fs afero.Fs, dir string, baseURL string) *Uploader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Uploader{Fs: fs, Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (u *Uploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	_ = ctx
	_ = contentType

	fullPath, clean, err := u.resolve(objectName)
	if err != nil {
		return "", err
	}
	if err := u.Fs.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteFile(u.Fs, fullPath, data, 0o644); err != nil {
		return "", err
	}

	if u.BaseURL == "" {
		return "", nil
	}
	return fmt.Sprintf("%s/%s", u.BaseURL, escapePath(clean)), nil
}

// Remove deletes a mirrored object and prunes its directory when empty.
func (u *Uploader) Remove(ctx context.Context, objectName string) error {
	_ = ctx

	fullPath, _, err := u.resolve(objectName)
	if err != nil {
		return err
	}
	if err := u.Fs.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	dir := filepath.Dir(fullPath)
	if dir != filepath.Clean(u.Dir) {
		if empty, err := afero.IsEmpty(u.Fs, dir); err == nil && empty {
			_ = u.Fs.Remove(dir)
		}
	}
	return nil
}

func (u *Uploader) resolve(objectName string) (string, string, error) {
	if u.Dir == "" {
		return "", "", errors.New("local storage dir is required")
	}
	if objectName == "" {
		return "", "", errors.New("object name is required")
	}
	clean, err := sanitizeObjectName(objectName)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(u.Dir, filepath.FromSlash(clean)), clean, nil
}

func sanitizeObjectName(objectName string) (string, error) {
	if strings.Contains(objectName, "..") {
		return "", ErrInvalidObjectName
	}
	clean := strings.TrimPrefix(path.Clean("/"+objectName), "/")
	if clean == "" || clean == "." {
		return "", ErrInvalidObjectName
	}
	return clean, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
