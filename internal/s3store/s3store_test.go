package s3store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"upload-column/internal/uploader"
)

var (
	_ uploader.Uploader = (*Uploader)(nil)
	_ uploader.Remover  = (*Uploader)(nil)
)

func TestCleanKey(t *testing.T) {
	require.Equal(t, "image/1/kerb.jpg", cleanKey(`image\1\kerb.jpg`))
	require.Equal(t, "image/kerb.jpg", cleanKey("/image/./kerb.jpg"))
	require.Equal(t, "etc/passwd", cleanKey("../../etc/passwd"))
}

func TestObjectURL(t *testing.T) {
	u := &Uploader{bucket: "attachments"}
	require.Equal(t, "s3://attachments/image/kerb.jpg", u.objectURL("image/kerb.jpg"))

	u.publicURL = "https://cdn.example.com"
	require.Equal(t, "https://cdn.example.com/image/kerb%20thumb.jpg", u.objectURL("image/kerb thumb.jpg"))
}

func TestUninitialized(t *testing.T) {
	var u *Uploader
	_, err := u.Upload(context.Background(), "a", nil, "")
	require.ErrorIs(t, err, ErrUninitialized)
	require.ErrorIs(t, u.Remove(context.Background(), "a"), ErrUninitialized)
}
