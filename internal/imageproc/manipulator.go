package imageproc

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"upload-column/internal/upload"
)

const defaultCacheSize = 1024

type dimensions struct {
	width, height int
}

// Manipulator rewrites image files in place on an afero filesystem. Each
// write goes to a sibling temp file that is renamed over the original, so a
// failed operation leaves the original untouched.
type Manipulator struct {
	Fs      afero.Fs
	Limits  Limits
	Quality int

	dims *lru.Cache[string, dimensions]
}

func NewManipulator(fs afero.Fs, limits Limits, quality int) *Manipulator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	cache, _ := lru.New[string, dimensions](defaultCacheSize)
	return &Manipulator{Fs: fs, Limits: limits, Quality: quality, dims: cache}
}

var _ upload.Manipulator = (*Manipulator)(nil)
var _ upload.Measurer = (*Manipulator)(nil)

func (m *Manipulator) Resize(path string, width, height int) error {
	return m.transform("resize", path, "", func(img image.Image) (image.Image, error) {
		return ResizeImage(img, width, height)
	})
}

func (m *Manipulator) CropResize(path string, width, height int) error {
	return m.transform("crop_resize", path, "", func(img image.Image) (image.Image, error) {
		return CropResizeImage(img, width, height)
	})
}

// Convert re-encodes the file at path as format ("png", "jpg", ...). The path
// itself is not renamed.
func (m *Manipulator) Convert(path string, format string) error {
	return m.transform("convert", path, format, func(img image.Image) (image.Image, error) {
		return img, nil
	})
}

// Dimensions reports pixel width and height, reading only the image header.
func (m *Manipulator) Dimensions(path string) (int, int, error) {
	info, err := m.Fs.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	key := fmt.Sprintf("%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
	if m.dims != nil {
		if d, ok := m.dims.Get(key); ok {
			return d.width, d.height, nil
		}
	}

	f, err := m.Fs.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &upload.ManipulationError{Op: "dimensions", Path: path, Err: err}
	}
	if m.dims != nil {
		m.dims.Add(key, dimensions{width: cfg.Width, height: cfg.Height})
	}
	return cfg.Width, cfg.Height, nil
}

func (m *Manipulator) transform(op, path, format string, fn func(image.Image) (image.Image, error)) error {
	info, err := m.Fs.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	if m.Limits.MaxBytes > 0 && info.Size() > m.Limits.MaxBytes {
		return &upload.ManipulationError{Op: op, Path: path, Err: ErrImageTooLarge}
	}

	data, err := afero.ReadFile(m.Fs, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	img, err := DecodeImage(data)
	if err != nil {
		return &upload.ManipulationError{Op: op, Path: path, Err: err}
	}
	if err := ValidateImage(img, m.Limits.MaxPixels); err != nil {
		return &upload.ManipulationError{Op: op, Path: path, Err: err}
	}

	out, err := fn(img)
	if err != nil {
		return &upload.ManipulationError{Op: op, Path: path, Err: err}
	}

	target, err := m.targetFormat(path, format)
	if err != nil {
		return &upload.ManipulationError{Op: op, Path: path, Err: err}
	}
	encoded, err := Encode(out, target, m.Quality)
	if err != nil {
		return &upload.ManipulationError{Op: op, Path: path, Err: err}
	}
	return m.replace(path, encoded, info.Mode().Perm())
}

func (m *Manipulator) targetFormat(path, format string) (imaging.Format, error) {
	if format != "" {
		return imaging.FormatFromExtension(strings.TrimPrefix(format, "."))
	}
	return imaging.FormatFromFilename(path)
}

func (m *Manipulator) replace(path string, data []byte, perm os.FileMode) error {
	tmp, err := afero.TempFile(m.Fs, filepath.Dir(path), ".manipulate-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = m.Fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = m.Fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := m.Fs.Chmod(tmpName, perm); err != nil {
		_ = m.Fs.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := m.Fs.Rename(tmpName, path); err != nil {
		_ = m.Fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
