package extension

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	allow := DefaultExtensions()
	cases := []struct {
		name, base, ext string
	}{
		{"kerb.jpg", "kerb", "jpg"},
		{"kerb.JPG", "kerb", "JPG"},
		{"archive.tar.gz", "archive", "tar.gz"},
		{"a.b.jpg", "a.b", "jpg"},
		{"report.final.exe", "report.final.exe", ""},
		{"noext", "noext", ""},
		{"_...", "_...", ""},
		{"photo.backup.png", "photo.backup", "png"},
	}
	for _, c := range cases {
		base, ext := Split(c.name, allow)
		require.Equal(t, c.base, base, c.name)
		require.Equal(t, c.ext, ext, c.name)
	}
}

func TestSplitWithoutAllowList(t *testing.T) {
	base, ext := Split("script.rb", nil)
	require.Equal(t, "script", base)
	require.Equal(t, "rb", ext)

	base, ext = Split("bundle.js.map", nil)
	require.Equal(t, "bundle", base)
	require.Equal(t, "js.map", ext)
}

func TestSplitRoundTrip(t *testing.T) {
	allow := DefaultExtensions()
	for _, base := range []string{"kerb", "a-b_c", "x+y", "UPPER", "1"} {
		for _, ext := range allow.Slice() {
			gotBase, gotExt := Split(Join(base, ext), allow)
			require.Equal(t, base, gotBase)
			require.Equal(t, ext, gotExt)
		}
	}
}

func TestResolve(t *testing.T) {
	opts := Options{FixFileExtensions: true, MimeExtensions: DefaultMimeExtensions()}

	ext, ct := Resolve("png", "image/jpeg", opts)
	require.Equal(t, "jpg", ext)
	require.Equal(t, "image/jpeg", ct)

	ext, _ = Resolve("JPEG", "application/x-unknown", opts)
	require.Equal(t, "jpeg", ext)

	ext, _ = Resolve("txt", "text/plain; charset=utf-8", opts)
	require.Equal(t, "txt", ext)

	opts.FixFileExtensions = false
	ext, _ = Resolve("png", "image/jpeg", opts)
	require.Equal(t, "png", ext)

	opts.ForceFormat = "GIF"
	ext, ct = Resolve("png", "image/png", opts)
	require.Equal(t, "gif", ext)
	require.Equal(t, "image/gif", ct)
}

func TestSetIsCaseInsensitive(t *testing.T) {
	s := NewSet("JPG", ".png")
	require.True(t, s.Contains("jpg"))
	require.True(t, s.Contains("PNG"))
	require.False(t, s.Contains(""))
	require.Equal(t, []string{"jpg", "png"}, s.Slice())
}
