// Package gcs mirrors saved attachments to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

var ErrBucketRequired = errors.New("bucket is required")

type Uploader struct {
	Client                *storage.Client
	Bucket                string
	MakePublic            bool
	AllowPublicACLFailure bool
}

func NewUploader(client *storage.Client, bucket string, makePublic bool, allowPublicACLFailure bool) *Uploader {
	return &Uploader{
		Client:                client,
		Bucket:                bucket,
		MakePublic:            makePublic,
		AllowPublicACLFailure: allowPublicACLFailure,
	}
}

func (u *Uploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	obj, err := u.object(objectName)
	if err != nil {
		return "", err
	}
	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.CacheControl = "public, max-age=86400"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	if u.MakePublic {
		if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
			// Buckets with uniform access reject object ACLs; the bucket policy decides instead.
			if u.AllowPublicACLFailure && strings.Contains(err.Error(), "uniform bucket-level access") {
				return publicURL(u.Bucket, objectName), nil
			}
			return "", err
		}
	}

	return publicURL(u.Bucket, objectName), nil
}

// Remove deletes a mirrored object. A missing object is not an error.
func (u *Uploader) Remove(ctx context.Context, objectName string) error {
	obj, err := u.object(objectName)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (u *Uploader) object(objectName string) (*storage.ObjectHandle, error) {
	if u.Client == nil {
		return nil, errors.New("storage client is required")
	}
	if u.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if objectName == "" {
		return nil, errors.New("object name is required")
	}
	return u.Client.Bucket(u.Bucket).Object(objectName), nil
}

func publicURL(bucket, objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectName)
}
