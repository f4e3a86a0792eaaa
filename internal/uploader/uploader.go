// Package uploader defines the object store mirror saved attachments are
// pushed to.
package uploader

import (
	"context"
	"path"
	"strings"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Remover is implemented by backends that can delete a mirrored object.
type Remover interface {
	Remove(ctx context.Context, objectName string) error
}

// ObjectName turns a path relative to the upload root into an object key.
func ObjectName(relativePath string) string {
	name := strings.ReplaceAll(relativePath, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
