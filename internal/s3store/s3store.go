// Package s3store mirrors saved attachments to an S3 compatible bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrUninitialized = errors.New("s3 storage uninitialized")

type Config struct {
	// Endpoint without scheme, e.g. "localhost:9000".
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicURL is prepended to object keys in returned URLs. Empty means
	// s3://bucket/key.
	PublicURL string
}

type Uploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects and creates the bucket when it does not exist yet.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Uploader{client: client, bucket: cfg.Bucket, publicURL: strings.TrimRight(cfg.PublicURL, "/")}, nil
}

func (u *Uploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if u == nil || u.client == nil {
		return "", ErrUninitialized
	}
	key := cleanKey(objectName)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return u.objectURL(info.Key), nil
}

func (u *Uploader) Remove(ctx context.Context, objectName string) error {
	if u == nil || u.client == nil {
		return ErrUninitialized
	}
	err := u.client.RemoveObject(ctx, u.bucket, cleanKey(objectName), minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (u *Uploader) objectURL(key string) string {
	if u.publicURL == "" {
		return fmt.Sprintf("s3://%s/%s", u.bucket, key)
	}
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return u.publicURL + "/" + strings.Join(parts, "/")
}

func cleanKey(name string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
}
