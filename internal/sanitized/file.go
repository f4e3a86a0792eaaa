// Package sanitized wraps an uploaded source (nothing, a path, a multipart
// part or a stream) behind one value with a safe filename, a resolved
// extension and a detected content type.
package sanitized

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"upload-column/internal/extension"
	"upload-column/internal/sanitize"
)

// ErrEmpty is returned by MoveTo and CopyTo when there is nothing to write.
var ErrEmpty = errors.New("sanitized: source is empty")

// ErrUnsupportedSource is returned by New for source values it cannot read.
var ErrUnsupportedSource = errors.New("sanitized: unsupported source")

// Upload is a stream with the metadata a client sent alongside it.
type Upload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
}

type Options struct {
	Extensions        extension.Set
	MimeExtensions    map[string]string
	FixFileExtensions bool
	DetectContentType bool
	ForceFormat       string
	// Permissions applied to every written file. Zero means 0644.
	Permissions os.FileMode
}

type File struct {
	fs   afero.Fs
	opts Options

	// Exactly one of path or data backs a non-empty file.
	path  string
	data  []byte
	owned bool

	originalFilename string
	basename         string
	ext              string
	declaredType     string
	contentType      string
}

// New wraps src. A nil src, an empty path or a zero length stream produce an
// empty File, not an error.
func New(fs afero.Fs, src any, opts Options) (*File, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f := &File{fs: fs, opts: opts}

	var clientName string
	switch s := src.(type) {
	case nil:
		return f, nil
	case *File:
		if s == nil {
			return f, nil
		}
		f.path, f.data = s.path, s.data
		clientName = s.originalFilename
		f.declaredType = s.declaredType
	case string:
		if s == "" {
			return f, nil
		}
		f.path = s
		clientName = filepath.Base(s)
	case []byte:
		f.data = s
	case *multipart.FileHeader:
		if s == nil {
			return f, nil
		}
		rc, err := s.Open()
		if err != nil {
			return nil, fmt.Errorf("open multipart file: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read multipart file: %w", err)
		}
		f.data = data
		clientName = s.Filename
		f.declaredType = s.Header.Get("Content-Type")
	case Upload:
		if s.Reader != nil {
			data, err := io.ReadAll(s.Reader)
			if err != nil {
				return nil, fmt.Errorf("read upload: %w", err)
			}
			f.data = data
		}
		clientName = s.Filename
		f.declaredType = s.ContentType
	case io.Reader:
		data, err := io.ReadAll(s)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		f.data = data
		if named, ok := s.(interface{ Name() string }); ok {
			clientName = filepath.Base(named.Name())
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}

	if f.IsEmpty() {
		return &File{fs: fs, opts: opts}, nil
	}
	f.setName(clientName)
	return f, nil
}

func (f *File) setName(clientName string) {
	f.originalFilename = sanitize.Filename(clientName)
	base, declaredExt := extension.Split(f.originalFilename, f.opts.Extensions)
	f.contentType = f.detectContentType(declaredExt)
	ext, ct := extension.Resolve(declaredExt, f.contentType, extension.Options{
		FixFileExtensions: f.opts.FixFileExtensions,
		MimeExtensions:    f.opts.MimeExtensions,
		ForceFormat:       f.opts.ForceFormat,
	})
	f.basename, f.ext, f.contentType = base, ext, ct
}

func (f *File) detectContentType(declaredExt string) string {
	if f.opts.DetectContentType {
		if ct := f.sniff(); ct != "" {
			return ct
		}
	}
	if ct := extension.TypeByExtension(declaredExt); ct != "" {
		return ct
	}
	return extension.BaseType(f.declaredType)
}

func (f *File) sniff() string {
	var (
		m   *mimetype.MIME
		err error
	)
	if f.data != nil {
		m = mimetype.Detect(f.data)
	} else {
		var r afero.File
		r, err = f.fs.Open(f.path)
		if err != nil {
			return ""
		}
		defer r.Close()
		m, err = mimetype.DetectReader(r)
	}
	if err != nil || m == nil {
		return ""
	}
	ct := extension.BaseType(m.String())
	if ct == "application/octet-stream" || ct == "text/plain" {
		return ""
	}
	return ct
}

// IsEmpty reports whether the source carries no bytes.
func (f *File) IsEmpty() bool {
	return f == nil || f.Size() == 0
}

// Size returns the byte length, or 0 when the backing path does not exist.
func (f *File) Size() int64 {
	if f.data != nil {
		return int64(len(f.data))
	}
	if f.path == "" {
		return 0
	}
	info, err := f.fs.Stat(f.path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

func (f *File) Exists() bool {
	if f.path == "" {
		return false
	}
	ok, err := afero.Exists(f.fs, f.path)
	return err == nil && ok
}

// Path is the location on disk, or "" for a buffered source.
func (f *File) Path() string { return f.path }

func (f *File) Basename() string { return f.basename }

func (f *File) Extension() string { return f.ext }

// Filename is basename plus resolved extension.
func (f *File) Filename() string { return extension.Join(f.basename, f.ext) }

// OriginalFilename is the sanitized name the client sent.
func (f *File) OriginalFilename() string { return f.originalFilename }

func (f *File) ContentType() string { return f.contentType }

func (f *File) Fs() afero.Fs { return f.fs }

// Bytes returns the file contents.
func (f *File) Bytes() ([]byte, error) {
	if f.data != nil {
		return f.data, nil
	}
	if f.path == "" {
		return nil, ErrEmpty
	}
	return afero.ReadFile(f.fs, f.path)
}

// CopyTo writes the contents to dst and returns a File backed by the copy.
func (f *File) CopyTo(dst string) (*File, error) {
	if err := f.write(dst); err != nil {
		return nil, err
	}
	c := *f
	c.path, c.data, c.owned = dst, nil, true
	return &c, nil
}

// MoveTo writes the contents to dst and repoints f at it. A previous copy is
// removed only when it was written by this package; caller supplied paths are
// left alone.
func (f *File) MoveTo(dst string) error {
	if err := f.write(dst); err != nil {
		return err
	}
	prev, owned := f.path, f.owned
	f.path, f.data, f.owned = dst, nil, true
	if owned && prev != "" && prev != dst {
		if err := f.fs.Remove(prev); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", prev, err)
		}
	}
	return nil
}

func (f *File) write(dst string) error {
	if f.IsEmpty() {
		return ErrEmpty
	}
	if f.path != "" && filepath.Clean(f.path) == filepath.Clean(dst) {
		return f.chmod(dst)
	}
	if err := f.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}

	var src io.Reader
	if f.data != nil {
		src = bytes.NewReader(f.data)
	} else {
		in, err := f.fs.Open(f.path)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.path, err)
		}
		defer in.Close()
		src = in
	}

	out, err := f.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return f.chmod(dst)
}

func (f *File) chmod(p string) error {
	if err := f.fs.Chmod(p, f.perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", p, err)
	}
	return nil
}

func (f *File) perm() os.FileMode {
	if f.opts.Permissions == 0 {
		return 0o644
	}
	return f.opts.Permissions
}
